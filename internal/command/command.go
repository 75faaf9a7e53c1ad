// Package command implements the request types a gateway session accepts.
package command

import (
	"context"
	"fmt"

	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/ucs"
)

const (
	GetInitialConfiguration = "getInitialConfiguration"
	CreateUCSSession        = "createUCSSession"
	PingUCSSessionStatus    = "pingUCSSessionStatus"
	NewMessage              = "newMessage"
	NewAlertMessage         = "newAlertMessage"
	GetAllMessages          = "getAllMessages"
	QueryMessages           = "queryMessages"
	UpdateMessage           = "updateMessage"
	CancelMessage           = "cancelMessage"
	DiscoverChannels        = "discoverChannels"
	GetStatus               = "getStatus"
	QueryConversations      = "queryConversations"
	RetrieveConversation    = "retrieveConversation"
	CreateConversation      = "createConversation"
)

// InitialConfiguration is what a freshly connected client is told about the
// deployment it is talking to.
type InitialConfiguration struct {
	ServerID      string   `json:"serverId"`
	WSPath        string   `json:"wsPath"`
	KafkaBrokers  []string `json:"kafkaBrokers"`
	OutboundTopic string   `json:"outboundTopic"`
	EventsTopic   string   `json:"eventsTopic"`
	Channels      []string `json:"channels"`
}

type Deps struct {
	Sessions *ucs.Manager
	Initial  InitialConfiguration
}

// Register adds every command to cmds.
func Register(cmds *gateway.Commands, d Deps) {
	if d.Sessions == nil {
		panic("command: Register requires a session manager")
	}
	s := sessionBound{sessions: d.Sessions}

	cmds.Register(GetInitialConfiguration, func() gateway.Command { return &getInitialConfiguration{cfg: d.Initial} })
	cmds.Register(CreateUCSSession, func() gateway.Command { return &createSession{sessions: d.Sessions} })
	cmds.Register(PingUCSSessionStatus, func() gateway.Command { return &pingSession{sessions: d.Sessions} })
	cmds.Register(NewMessage, func() gateway.Command { return &newMessage{sessionBound: s} })
	cmds.Register(NewAlertMessage, func() gateway.Command { return &newAlertMessage{sessionBound: s} })
	cmds.Register(GetAllMessages, func() gateway.Command { return &listMessages{sessionBound: s} })
	cmds.Register(QueryMessages, func() gateway.Command { return &listMessages{sessionBound: s, summaries: true} })
	cmds.Register(UpdateMessage, func() gateway.Command { return &updateMessage{sessionBound: s} })
	cmds.Register(CancelMessage, func() gateway.Command { return &cancelMessage{sessionBound: s} })
	cmds.Register(DiscoverChannels, func() gateway.Command { return &discoverChannels{sessionBound: s} })
	cmds.Register(GetStatus, func() gateway.Command { return &getStatus{sessionBound: s} })
	cmds.Register(QueryConversations, func() gateway.Command { return &queryConversations{sessionBound: s} })
	cmds.Register(RetrieveConversation, func() gateway.Command { return &retrieveConversation{sessionBound: s} })
	cmds.Register(CreateConversation, func() gateway.Command { return &createConversation{sessionBound: s} })
}

// sessionBound gives commands access to the current backend session.
type sessionBound struct {
	sessions *ucs.Manager
}

func (s sessionBound) client() (*ucs.Client, error) {
	sess, err := s.sessions.Current()
	if err != nil {
		return nil, err
	}
	return sess.Client, nil
}

type noParams struct{}

func (noParams) Init(gateway.Envelope) error { return nil }

type getInitialConfiguration struct {
	noParams
	cfg InitialConfiguration
}

func (c *getInitialConfiguration) Execute(context.Context) (any, error) {
	return c.cfg, nil
}

type createSession struct {
	noParams
	sessions *ucs.Manager
}

func (c *createSession) Execute(ctx context.Context) (any, error) {
	s, err := c.sessions.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("exception creating UCS session: %w", err)
	}
	return map[string]string{"sessionId": s.ID}, nil
}

type pingSession struct {
	noParams
	sessions *ucs.Manager
}

func (c *pingSession) Execute(context.Context) (any, error) {
	status := "not initialized"
	if c.sessions.Initialized() {
		status = "initialized"
	}
	return map[string]string{"status": status}, nil
}
