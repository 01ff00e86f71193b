package trader

import (
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// Agent is the part of the sync agent the bot drives.
type Agent interface {
	JoinRoom(instrument string) error
	SubmitOrder(o models.Order) error
}
