// pkg/devtools/dispatch.go
package devtools

import (
	"errors"

	"go.uber.org/zap"
)

const maxLoggedFrame = 512

// readLoop is the single consumer of the transport after the handshake. It stops on
// a read error, on destruction of the attached target or, when configured, on a
// malformed frame.
func (s *Session) readLoop() {
	err := s.dispatch()
	defer func() {
		s.doneErr = err
		close(s.done)
	}()

	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, ErrTargetDestroyed):
		s.logger.Debug("Dispatch loop stopped.", zap.Error(err))
	default:
		s.logger.Error("Dispatch loop stopped unexpectedly.", zap.Error(err))
	}
	if dropped := s.eventLog.dropped(); dropped > 0 {
		s.logger.Info("Page events were throttled.", zap.Uint64("dropped", dropped))
	}
}

func (s *Session) dispatch() error {
	for {
		raw, err := s.transport.Read()
		if err != nil {
			return err
		}

		f, err := decodeFrame(raw)
		if err != nil {
			if s.opts.TerminateOnMalformed {
				return err
			}
			s.logger.Warn("Skipping malformed frame.", zap.Error(err), zap.ByteString("frame", clip(raw)))
			continue
		}

		switch f := f.(type) {
		case targetDestroyedFrame:
			if f.TargetID != s.targetID {
				continue
			}
			s.logger.Info("Attached page target destroyed.")
			if s.opts.OnTargetDestroyed != nil {
				s.opts.OnTargetDestroyed()
			}
			return ErrTargetDestroyed

		case targetMessageFrame:
			if f.SessionID != s.sessionID {
				continue
			}
			inner, err := decodeFrame([]byte(f.Message))
			if err != nil {
				if s.opts.TerminateOnMalformed {
					return err
				}
				s.logger.Warn("Skipping malformed target message.", zap.Error(err), zap.String("message", string(clip([]byte(f.Message)))))
				continue
			}
			s.route(inner)

		case replyFrame:
			// The outer Target.sendMessageToTarget shares its id with the inner
			// command. If the browser refuses the envelope no inner reply will
			// ever come, so the refusal settles the call instead.
			if f.ID >= reservedIDs && isSet(f.Error) {
				s.settle(f)
			}
		}
		// Anything else at the top level is either a successful acknowledgement
		// (the real reply arrives relayed) or a browser-wide event nobody asked for.
	}
}

// route handles one message relayed from the attached page.
func (s *Session) route(f frame) {
	switch f := f.(type) {
	case replyFrame:
		s.settle(f)
	case bindingFrame:
		s.bindingCalled(f)
	case consoleFrame:
		s.eventLog.console(f.Event)
		s.emit(f.Event)
	case exceptionFrame:
		s.eventLog.exception(f.Event)
		s.emit(f.Event)
	case eventFrame:
		s.emit(&RawEvent{Method: f.Method, Params: f.Params})
	default:
		s.logger.Debug("Ignoring relayed frame.", zap.String("method", f.frameMethod()))
	}
}

func (s *Session) emit(ev any) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

func clip(b []byte) []byte {
	if len(b) > maxLoggedFrame {
		return b[:maxLoggedFrame]
	}
	return b
}
