package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
)

const maxConcurrentDigests = 4

// DigestData feeds the digest template.
type DigestData struct {
	From     time.Time
	To       time.Time
	Period   *PeriodSummary
	Upcoming []Deadline
	Overdue  []Deadline
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
	"pct":  func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).Parse(`<html><body>
<h2>Compliance digest {{date .From}} - {{date .To}}</h2>
{{with .Period.Summary}}
<table>
<tr><td>Total obligations</td><td>{{.Total}}</td></tr>
<tr><td>On time</td><td>{{.OnTime}} ({{pct .OnTimePercent}})</td></tr>
<tr><td>Late</td><td>{{.Late}}</td></tr>
<tr><td>Overdue</td><td>{{.Overdue}}</td></tr>
<tr><td>Pending</td><td>{{.Pending}}</td></tr>
<tr><td>Average days late</td><td>{{printf "%.1f" .AverageLateDays}}</td></tr>
<tr><td>Unread critical alerts</td><td>{{.UnreadCritical}}</td></tr>
</table>
{{end}}
{{if .Overdue}}<h3>Overdue</h3>
<ul>{{range .Overdue}}<li>{{.Report}} ({{.Entity}}, {{.Period}}) due {{date .DueDate}}, responsible {{.Responsible}}</li>{{end}}</ul>
{{end}}
{{if .Upcoming}}<h3>Due in the next 7 days</h3>
<ul>{{range .Upcoming}}<li>{{.Report}} ({{.Entity}}, {{.Period}}) due {{date .DueDate}}</li>{{end}}</ul>
{{end}}
{{if .Period.TopEntities}}<h3>Entities with most late reports</h3>
<ol>{{range .Period.TopEntities}}<li>{{.Name}}: {{.Count}}</li>{{end}}</ol>
{{end}}
</body></html>`))

// DigestGenerator renders and mails the weekly compliance digest.
type DigestGenerator struct {
	aggregator *Aggregator
	notifier   notify.Notifier
	recipients []string
	logger     *zap.Logger

	supervisors bool
}

func NewDigestGenerator(a *Aggregator, n notify.Notifier, recipients []string, logger *zap.Logger) *DigestGenerator {
	return &DigestGenerator{aggregator: a, notifier: n, recipients: recipients, logger: logger}
}

// WithSupervisors also addresses the digest to every active supervisor.
func (g *DigestGenerator) WithSupervisors() *DigestGenerator {
	g.supervisors = true
	return g
}

// recipientList merges the configured addresses with the supervisors, once per address.
func (g *DigestGenerator) recipientList(ctx context.Context) ([]notify.Recipient, error) {
	seen := make(map[string]bool)
	var out []notify.Recipient
	add := func(name, email string) {
		key := strings.ToLower(email)
		if email == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, notify.Recipient{Name: name, Email: email})
	}
	for _, to := range g.recipients {
		add(to, to)
	}
	if g.supervisors {
		users, err := g.aggregator.store.ListUsers(ctx, models.RoleSupervisor)
		if err != nil {
			return nil, fmt.Errorf("failed to list supervisors: %w", err)
		}
		for i := range users {
			if users[i].IsActive {
				add(users[i].DisplayName(), users[i].Email)
			}
		}
	}
	return out, nil
}

// Collect gathers the digest data for the week ending today.
func (g *DigestGenerator) Collect(ctx context.Context) (*DigestData, error) {
	to := g.aggregator.Today()
	from := to.AddDate(0, 0, -7)

	period, err := g.aggregator.Period(ctx, from, to, 6, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to collect digest data: %w", err)
	}
	upcoming, err := g.aggregator.Upcoming(ctx, 7)
	if err != nil {
		return nil, err
	}
	overdue, err := g.aggregator.Overdue(ctx)
	if err != nil {
		return nil, err
	}
	return &DigestData{From: from, To: to, Period: period, Upcoming: upcoming, Overdue: overdue}, nil
}

// Render produces the notification for data.
func Render(data *DigestData) (notify.Message, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return notify.Message{}, fmt.Errorf("failed to execute template: %w", err)
	}

	s := data.Period.Summary
	var text strings.Builder
	fmt.Fprintf(&text, "Compliance digest %s - %s\n\n", data.From.Format("2006-01-02"), data.To.Format("2006-01-02"))
	fmt.Fprintf(&text, "Total: %d, on time: %d (%.1f%%), late: %d, overdue: %d, pending: %d\n",
		s.Total, s.OnTime, s.OnTimePercent, s.Late, s.Overdue, s.Pending)
	fmt.Fprintf(&text, "Overdue now: %d, due in the next 7 days: %d\n", len(data.Overdue), len(data.Upcoming))

	level := models.AlertLevelInfo
	if len(data.Overdue) > 0 {
		level = models.AlertLevelWarning
	}
	return notify.Message{
		Subject: fmt.Sprintf("ReportTrack weekly digest (%s - %s)",
			data.From.Format("2006-01-02"), data.To.Format("2006-01-02")),
		Body:  text.String(),
		HTML:  buf.String(),
		Level: level,
	}, nil
}

// Send collects, renders and mails the digest to every configured recipient,
// a few recipients at a time. Delivery failures are logged and counted, not returned.
func (g *DigestGenerator) Send(ctx context.Context) (int, error) {
	if len(g.recipients) == 0 && !g.supervisors {
		g.logger.Debug("No digest recipients configured")
		return 0, nil
	}
	data, err := g.Collect(ctx)
	if err != nil {
		return 0, err
	}
	msg, err := Render(data)
	if err != nil {
		return 0, err
	}

	recipients, err := g.recipientList(ctx)
	if err != nil {
		return 0, err
	}

	var (
		sent int64
		wg   sync.WaitGroup
	)
	sem := semaphore.NewWeighted(maxConcurrentDigests)
	for _, to := range recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(m notify.Message, to notify.Recipient) {
			defer sem.Release(1)
			defer wg.Done()
			m.To = to
			if err := g.notifier.Send(ctx, m); err != nil {
				g.logger.Warn("Failed to send digest", zap.String("to", to.Email), zap.Error(err))
				return
			}
			atomic.AddInt64(&sent, 1)
		}(msg, to)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return int(sent), err
	}
	g.logger.Info("Weekly digest sent", zap.Int64("recipients", sent))
	return int(sent), nil
}
