package service

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/platform"
)

// RenderTranscript flattens history, oldest first, into one
// "[timestamp] author: text" line per message.
func RenderTranscript(channelName string, history []domain.HistoryMessage) *Transcript {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Author, m.Text)
	}
	content := []byte(b.String())
	sum := blake3.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	return &Transcript{
		File: platform.File{
			Name:    fmt.Sprintf("transcript-%s.txt", channelName),
			Content: content,
			Comment: fmt.Sprintf("Transcript of #%s (%d messages, blake3 %s)", channelName, len(history), digest[:16]),
		},
		Lines:  len(history),
		Digest: digest,
	}
}
