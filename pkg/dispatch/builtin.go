package dispatch

import (
	"context"
	"fmt"
	"maps"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Built-in action names.
const (
	ActionJumpToFlow    = "jump_to_flow"
	ActionMoveForward   = "move_forward"
	ActionSaveReply     = "save_reply"
	ActionSetData       = "set_data"
	ActionUserInput     = "user_input"
	ActionPickText      = "pick_text"
	ActionPickImage     = "pick_image"
	ActionPickAudio     = "pick_audio"
	ActionPickAudioText = "pick_audio_text"
	ActionPickLocation  = "pick_location"
)

// TextSender is the slice of the Dispatcher the built-in handlers need.
type TextSender interface {
	SendText(ctx context.Context, sessionKey, text string) (string, error)
}

// RegisterBuiltins installs the standard handlers every flow may use.
func RegisterBuiltins(r *Registry, sender TextSender) error {
	handlers := map[string]Handler{
		ActionJumpToFlow:    HandlerFunc(jumpToFlow),
		ActionMoveForward:   HandlerFunc(moveForward),
		ActionSaveReply:     HandlerFunc(saveReply),
		ActionSetData:       HandlerFunc(setData),
		ActionUserInput:     awaitReply(sender, domain.ReplyText),
		ActionPickText:      awaitReply(sender, domain.ReplyText),
		ActionPickImage:     awaitReply(sender, domain.ReplyImage),
		ActionPickAudio:     awaitReply(sender, domain.ReplyAudio),
		ActionPickAudioText: awaitReply(sender, domain.ReplyAudioText),
		ActionPickLocation:  awaitReply(sender, domain.ReplyLocation),
	}
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// AwaitsReply reports whether the named built-in suspends the session for a reply.
func AwaitsReply(name string) bool {
	switch name {
	case ActionUserInput, ActionPickText, ActionPickImage, ActionPickAudio, ActionPickAudioText, ActionPickLocation:
		return true
	default:
		return false
	}
}

// JumpArgs is the static data of a jump_to_flow action.
type JumpArgs struct {
	Flow  string `mapstructure:"flow"`
	State string `mapstructure:"state"`
}

// DecodeJump reads jump_to_flow data. The flow validator uses it to check targets ahead of time.
func DecodeJump(data map[string]any) (JumpArgs, error) {
	var args JumpArgs
	if err := decode(data, &args); err != nil {
		return args, err
	}
	if args.Flow == "" {
		return args, fmt.Errorf("%s: missing flow", ActionJumpToFlow)
	}
	return args, nil
}

func jumpToFlow(_ context.Context, inv *domain.Invocation) domain.ActionResult {
	args, err := DecodeJump(inv.Data)
	if err != nil {
		return domain.Failure(err.Error())
	}
	return domain.FlowJump(args.Flow, args.State)
}

func moveForward(_ context.Context, inv *domain.Invocation) domain.ActionResult {
	var args struct {
		Event string         `mapstructure:"event"`
		Data  map[string]any `mapstructure:"data"`
	}
	if err := decode(inv.Data, &args); err != nil {
		return domain.Failure(err.Error())
	}
	if args.Event == "" {
		args.Event = domain.EventSuccess
	}
	return domain.Deferred(args.Event, inv.Session.CurrentState, args.Data)
}

func saveReply(_ context.Context, inv *domain.Invocation) domain.ActionResult {
	var args struct {
		Key string `mapstructure:"key"`
	}
	if err := decode(inv.Data, &args); err != nil {
		return domain.Failure(err.Error())
	}
	if args.Key == "" {
		args.Key = inv.Session.CurrentState
	}

	if len(inv.Event.Data) > 0 {
		v := maps.Clone(inv.Event.Data)
		if inv.Event.Payload != "" {
			v["payload"] = inv.Event.Payload
		}
		inv.Session.MiscData[args.Key] = v
	} else {
		inv.Session.MiscData[args.Key] = inv.Event.Payload
	}
	return domain.Plain(domain.EventSuccess)
}

func setData(_ context.Context, inv *domain.Invocation) domain.ActionResult {
	var args struct {
		Values map[string]any `mapstructure:"values"`
	}
	if err := decode(inv.Data, &args); err != nil {
		return domain.Failure(err.Error())
	}
	maps.Copy(inv.Session.MiscData, args.Values)
	return domain.Plain(domain.EventSuccess)
}

// awaitReply marks the session as waiting for a reply of the given type,
// optionally sending a text first.
func awaitReply(sender TextSender, replyType string) Handler {
	return HandlerFunc(func(ctx context.Context, inv *domain.Invocation) domain.ActionResult {
		var args struct {
			Text string `mapstructure:"text"`
		}
		if err := decode(inv.Data, &args); err != nil {
			return domain.Failure(err.Error())
		}

		var contextID string
		if args.Text != "" && sender != nil {
			id, err := sender.SendText(ctx, inv.Session.ID, args.Text)
			if err != nil {
				// Suspend anyway so the failure cannot chain into the post-actions.
				inv.AwaitReply(replyType, "")
				return domain.Failure(err.Error())
			}
			contextID = id
		}
		inv.AwaitReply(replyType, contextID)
		return domain.Plain("")
	})
}

func decode(data map[string]any, out any) error {
	if len(data) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode action data: %w", err)
	}
	return nil
}
