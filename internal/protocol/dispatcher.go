package protocol

import (
	"context"
	"errors"
	"strings"

	"mtastsd/internal/log"
	"mtastsd/internal/metrics"
	"mtastsd/internal/sts"
)

// Commands understood by the dispatcher. Unknown is the name under which unrecognized commands
// are counted.
const (
	CommandSTS     = "STS"
	CommandQuit    = "QUIT"
	CommandVersion = "VERSION"
	CommandStats   = "STATS"
	CommandUnknown = "UNKNOWN"
)

// ErrUnknownCommand is the reply to any unrecognized command.
const ErrUnknownCommand = "UNKNOWN COMMAND"

// PolicyResolver resolves a validated policy request into the raw policy document.
type PolicyResolver interface {
	Resolve(ctx context.Context, req *sts.PolicyRequest) (string, error)
}

// Dispatcher parses command lines and replies to them.
type Dispatcher struct {
	Resolver PolicyResolver
	Stats    *metrics.Stats
	Hook     metrics.CommandHook
	Logger   log.Logger
	// Version is the payload of the VERSION reply.
	Version string
}

// Dispatch handles a single command line, already stripped of its line terminator. It returns
// true if the client asked to end the session. STS replies are written asynchronously, possibly
// after later commands have been answered.
func (d *Dispatcher) Dispatch(ctx context.Context, session *Session, line string) bool {
	fields := strings.Split(strings.TrimSpace(line), " ")
	command, args := strings.ToUpper(fields[0]), fields[1:]

	switch command {
	case CommandSTS, CommandQuit, CommandVersion, CommandStats:
	default:
		command = CommandUnknown
	}

	d.Stats.IncCommand(command)
	d.Hook.EmitCommand(command, session.RemoteAddr())
	d.Logger.Debug("dispatcher: received command: id=%s command=%s args=%d", session.ID(), command, len(args))

	switch command {
	case CommandSTS:
		d.sts(ctx, session, args)
	case CommandQuit:
		session.SendFinal("BYE")
		return true
	case CommandVersion:
		session.SendOK(d.Version)
	case CommandStats:
		d.stats(session)
	default:
		session.SendError(ErrUnknownCommand)
	}

	return false
}

// sts validates the requested host and starts its policy resolution in the background.
func (d *Dispatcher) sts(ctx context.Context, session *Session, args []string) {
	var host string
	if len(args) > 0 {
		host = args[0]
	}

	req, err := sts.NewPolicyRequest(host, session)
	if err != nil {
		d.reply(session, "", err)
		return
	}

	session.spawn(func() {
		policy, err := d.Resolver.Resolve(ctx, req)
		d.reply(session, policy, err)
	})
}

// reply writes the outcome of a policy request. Only the failure kind reaches the client.
func (d *Dispatcher) reply(session *Session, policy string, err error) {
	if err == nil {
		session.SendOK(policy)
		return
	}

	var failure *sts.Failure
	if !errors.As(err, &failure) {
		failure = &sts.Failure{Kind: sts.HTTPFailed, Err: err}
	}

	d.Logger.Debug("dispatcher: replying with failure: id=%s err=%v", session.ID(), err)
	session.SendError(failure.Kind.String())
}

// stats replies with a JSON snapshot of the counters.
func (d *Dispatcher) stats(session *Session) {
	data, err := d.Stats.JSON()
	if err != nil {
		d.Logger.Error("dispatcher: error serializing stats: id=%s err=%v", session.ID(), err)
		session.SendError("STATS UNAVAILABLE")
		return
	}

	session.SendOK(string(data))
}
