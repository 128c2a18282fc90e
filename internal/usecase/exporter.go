package usecase

import (
	"context"
	"errors"
	"strings"

	"voicecoach/internal/domain"
	"voicecoach/internal/ports"
)

var ErrEmptyTranscript = errors.New("transcript is empty")

type transcriptExporter struct {
	clipboard ports.Clipboard
	events    ports.EventSink
}

func newTranscriptExporter(clipboard ports.Clipboard, events ports.EventSink) transcriptExporter {
	return transcriptExporter{clipboard: clipboard, events: events}
}

// Export copies the transcript to the clipboard. A clipboard failure is
// reported as a notice and returned.
func (e transcriptExporter) Export(ctx context.Context, transcript string) error {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return ErrEmptyTranscript
	}
	if e.clipboard == nil {
		return errors.New("clipboard is not available")
	}
	if err := e.clipboard.SetText(ctx, text); err != nil {
		e.events.Notice(domain.ErrorCodeClipboard, "transcript ready but clipboard write failed")
		return err
	}
	return nil
}
