package modules

import (
	"context"

	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/protocol"
)

// Module is the interface that describes a module that extends Raido
// capabilities.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module.
	Init(*models.Index, *models.Participant)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning an error of type protocol.ErrTypeMsgSkip indicates that
	// handling a message was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, protocol.ResponseSender, protocol.Msg) error

	// Handles a client disconnection.
	HandleDisconnect()
}
