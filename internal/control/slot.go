package control

import "context"

// CodeSlot bridges manual access-code entry into the recognition pipeline.
// The resolver blocks in Prompt while the operator posts the code they see to
// the control surface; Fill delivers it.
type CodeSlot struct {
	ch chan string
}

func NewCodeSlot() *CodeSlot {
	return &CodeSlot{ch: make(chan string, 1)}
}

// Prompt waits for an operator-supplied code.
func (s *CodeSlot) Prompt(ctx context.Context) (string, error) {
	select {
	case code := <-s.ch:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Fill hands a code to the waiting prompt. A code nobody collected yet is
// replaced rather than queued; only the latest entry can match the image on
// screen.
func (s *CodeSlot) Fill(code string) {
	for {
		select {
		case s.ch <- code:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
