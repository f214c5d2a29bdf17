package gemini

import (
	"context"

	"github.com/zenexasolutions/Fight/internal/ai"
)

// refChat is a chat with The Ref scoped to one user. Every Send opens a new
// underlying session, so no history is carried between messages.
type refChat struct {
	gateway *Gateway
	system  string
}

func (g *Gateway) StartRefChat(userName string) ai.RefChat {
	return &refChat{
		gateway: g,
		system:  fill(refTemplate, "{{USER_NAME}}", userName),
	}
}

func (c *refChat) Send(ctx context.Context, message string) ai.Result[string] {
	g := c.gateway
	model := g.models.Chat
	g.logRequest(model, "ref_chat", message)

	reply, err := g.gen.Converse(ctx, model, c.system, message)
	if err != nil {
		g.logFailure(model, "ref chat failed", err)
		return ai.Absent[string](err)
	}

	g.logResponse(model, "ref_chat", reply)
	return ai.OK(reply)
}
