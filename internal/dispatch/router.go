package dispatch

import (
	"context"
	"fmt"

	"github.com/tbourn/pollcord/internal/discord"
)

// Request is what a handler receives.
type Request struct {
	Interaction *discord.Interaction
	Reply       *discord.ReplyHandle
	Component   ComponentID
	// Args are the fixed trailing arguments the handler was registered with.
	Args []string
}

// Handler processes one routed interaction.
type Handler func(ctx context.Context, req *Request) error

type route struct {
	handler Handler
	args    []string
}

// Router maps command names and component verbs to handlers. It does no I/O
// of its own.
type Router struct {
	commands   map[string]route
	components map[Verb]route

	// MissingID runs instead of the component handler when a custom id has
	// no entity id.
	MissingID Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		commands:   make(map[string]route),
		components: make(map[Verb]route),
	}
}

// Command registers h for the slash command name.
func (r *Router) Command(name string, h Handler) {
	if _, dup := r.commands[name]; dup {
		panic(fmt.Sprintf("dispatch: command %q registered twice", name))
	}
	r.commands[name] = route{handler: h}
}

// Component registers h for verb, passing args on every call.
func (r *Router) Component(verb Verb, h Handler, args ...string) {
	if _, dup := r.components[verb]; dup {
		panic(fmt.Sprintf("dispatch: component %q registered twice", verb))
	}
	r.components[verb] = route{handler: h, args: args}
}

// Dispatch routes in. handled is false when no handler matches, so the
// caller can send its own fallback.
func (r *Router) Dispatch(ctx context.Context, in *discord.Interaction, reply *discord.ReplyHandle) (handled bool, err error) {
	switch in.Type {
	case discord.InteractionApplicationCommand:
		rt, ok := r.commands[in.CommandName()]
		if !ok {
			return false, nil
		}
		return true, rt.handler(ctx, &Request{Interaction: in, Reply: reply, Args: rt.args})

	case discord.InteractionMessageComponent:
		cid := ParseComponentID(in.CustomID())
		rt, ok := r.components[cid.Verb]
		if !ok {
			return false, nil
		}
		req := &Request{Interaction: in, Reply: reply, Component: cid, Args: rt.args}
		if cid.EntityID == "" {
			if r.MissingID == nil {
				return true, nil
			}
			return true, r.MissingID(ctx, req)
		}
		return true, rt.handler(ctx, req)
	}
	return false, nil
}
