// internal/classifier/classifier.go
//
// Closed-world text classifier.
//
// Context
// -------
// `Classify` asks an upstream language model to route free text to one
// (service, agency) pair from the catalog and to grade its importance.  The
// answer is trusted only when it names a pair that exists verbatim in the
// catalog; every other outcome collapses to the Spam sentinel:
//
//   - upstream error or timeout,
//   - malformed or non-object JSON,
//   - missing service or agency,
//   - a pair not present in the catalog,
//   - the model itself answering Spam.
//
// There is exactly one upstream attempt per call.
//
// Notes
// -----
//   - Importance outside low/medium/high/critical is coerced to medium for a
//     valid pair, so a catalog match is never discarded over grading noise.
//   - Empty text never reaches the upstream.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/catalog"
	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/record"
)

// Completer sends one system+user prompt pair and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DefaultTimeout bounds a single upstream call when none is configured.
const DefaultTimeout = 15 * time.Second

const systemPrompt = "You are a helpful assistant that categorizes citizen reports " +
	"into government services. You must return only valid JSON."

// Classifier maps text to a catalog pair or the Spam sentinel.
type Classifier struct {
	cat     *catalog.Catalog
	up      Completer
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New wires a Classifier.  A nil logger falls back to zap.S().
func New(cat *catalog.Catalog, up Completer, timeout time.Duration, log *zap.SugaredLogger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.S()
	}
	return &Classifier{cat: cat, up: up, timeout: timeout, log: log}
}

// reply is the JSON object the prompt asks the model to return.
type reply struct {
	Service    string `json:"service"`
	Agency     string `json:"agency"`
	Importance string `json:"importance"`
}

var errMalformed = errors.New("malformed classifier reply")

// Classify never fails; see the package comment for the fallback rules.
func (c *Classifier) Classify(ctx context.Context, text string) record.Classification {
	text = strings.TrimSpace(text)
	if text == "" || c.up == nil {
		metrics.ClassificationTotal.WithLabelValues("spam").Inc()
		return record.Spam
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.up.Complete(ctx, systemPrompt, c.prompt(text))
	if err != nil {
		c.log.Warnw("classifier upstream failed", "err", err)
		metrics.ClassificationTotal.WithLabelValues("upstream_error").Inc()
		return record.Spam
	}

	rep, err := parseReply(raw)
	if err != nil {
		c.log.Warnw("classifier reply rejected", "err", err, "reply", truncate(raw, 200))
		metrics.ClassificationTotal.WithLabelValues("malformed").Inc()
		return record.Spam
	}

	if rep.Service == record.SpamLabel || rep.Agency == record.SpamLabel {
		metrics.ClassificationTotal.WithLabelValues("spam").Inc()
		return record.Spam
	}
	if !c.cat.Contains(rep.Service, rep.Agency) {
		c.log.Warnw("classifier pair not in catalog", "service", rep.Service, "agency", rep.Agency)
		metrics.ClassificationTotal.WithLabelValues("unlisted").Inc()
		return record.Spam
	}

	imp, ok := record.ParseImportance(rep.Importance)
	if !ok {
		imp = record.ImportanceMedium
	}
	metrics.ClassificationTotal.WithLabelValues("matched").Inc()
	return record.Classification{Service: rep.Service, Agency: rep.Agency, Importance: imp}
}

func (c *Classifier) prompt(text string) string {
	return fmt.Sprintf(`Given the following report text, determine which government service it relates to from the list below.
You must return a valid JSON object with exactly these fields: service, agency, and importance.
The service must match exactly one of the services from the list below.
The agency must match the corresponding agency for that service.

Report text: %s

Available services:
%s

Return ONLY a JSON object in this exact format:
{"service": "exact service name from list", "agency": "corresponding agency name", "importance": "low, medium, high, or critical"}

If the report text does not belong to any of the services, or does not contain any relevant information, return:
{"service": "Spam", "agency": "Spam", "importance": "low"}`, text, c.cat.Prompt())
}

// parseReply accepts a bare JSON object, optionally wrapped in a Markdown
// code fence.
func parseReply(raw string) (reply, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return reply{}, errMalformed
	}

	var rep reply
	if err := json.Unmarshal([]byte(s), &rep); err != nil {
		return reply{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if rep.Service == "" || rep.Agency == "" {
		return reply{}, fmt.Errorf("%w: missing service or agency", errMalformed)
	}
	return rep, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
