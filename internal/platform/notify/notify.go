// Package notify dispatches workflow notifications over email and SMS with
// bounded retries. Delivery state is tracked in an in-process table keyed by
// a generated id; the durable record of what happened is the audit ledger,
// not this table.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Recipient is a resolved notification target.
type Recipient struct {
	ID       uuid.UUID
	Name     string
	Email    string
	Phone    string
	SMSOptIn bool
}

// Message is the rendered notification content.
type Message struct {
	Subject string
	Body    string
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Result reports first-attempt outcomes back to the triggering operation.
// Channels that failed their first attempt keep retrying in the background.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Delivery tracks one channel delivery through its retry lifecycle.
type Delivery struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Channel     Channel    `json:"channel"`
	Address     string     `json:"address"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	Urgency     Urgency    `json:"urgency"`
	Status      string     `json:"status"` // pending, sent, failed
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    time.Time  `json:"deadline"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Config bounds the retry behavior.
type Config struct {
	MaxAttempts         int           // normal urgency, default 3
	CriticalMaxAttempts int           // high/critical urgency, default 5
	BackoffBase         time.Duration // first retry delay, doubled per attempt
	RetryWindow         time.Duration // absolute cap on retrying a delivery
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.CriticalMaxAttempts <= 0 {
		c.CriticalMaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = 24 * time.Hour
	}
	return c
}

// Dispatcher fans notifications out to each recipient's channels and retries
// failures with exponential backoff on the injected scheduler.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender
	sched Scheduler
	cfg   Config
	log   zerolog.Logger

	mu         sync.RWMutex
	deliveries map[string]*Delivery
}

func NewDispatcher(email EmailSender, sms SMSSender, sched Scheduler, cfg Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		email:      email,
		sms:        sms,
		sched:      sched,
		cfg:        cfg.withDefaults(),
		log:        log,
		deliveries: make(map[string]*Delivery),
	}
}

// Stop cancels all pending retries.
func (d *Dispatcher) Stop() { d.sched.Stop() }

// Notify resolves channels per recipient and attempts each delivery once,
// scheduling retries for failures. Email is attempted whenever an address
// exists; SMS only for high/critical urgency or explicit opt-in, and only
// when a phone number exists. The returned counts reflect first attempts.
func (d *Dispatcher) Notify(ctx context.Context, event string, recipients []Recipient, msg Message, urgency Urgency) Result {
	var result Result
	for _, rcpt := range recipients {
		if rcpt.Email != "" {
			if d.deliver(ctx, event, rcpt, ChannelEmail, rcpt.Email, msg, urgency) {
				result.Sent++
			} else {
				result.Failed++
			}
		}
		smsWanted := urgency == UrgencyHigh || urgency == UrgencyCritical || rcpt.SMSOptIn
		if smsWanted && rcpt.Phone != "" {
			if d.deliver(ctx, event, rcpt, ChannelSMS, rcpt.Phone, msg, urgency) {
				result.Sent++
			} else {
				result.Failed++
			}
		}
	}
	return result
}

func (d *Dispatcher) maxAttempts(urgency Urgency) int {
	if urgency == UrgencyHigh || urgency == UrgencyCritical {
		return d.cfg.CriticalMaxAttempts
	}
	return d.cfg.MaxAttempts
}

func (d *Dispatcher) deliver(ctx context.Context, event string, rcpt Recipient, channel Channel, address string, msg Message, urgency Urgency) bool {
	now := time.Now().UTC()
	delivery := &Delivery{
		ID:          uuid.New().String(),
		Event:       event,
		Channel:     channel,
		Address:     address,
		RecipientID: rcpt.ID,
		Urgency:     urgency,
		Status:      "pending",
		MaxAttempts: d.maxAttempts(urgency),
		CreatedAt:   now,
		Deadline:    now.Add(d.cfg.RetryWindow),
	}

	d.mu.Lock()
	d.deliveries[delivery.ID] = delivery
	d.mu.Unlock()

	return d.attempt(ctx, delivery.ID, msg)
}

// attempt performs one send and either marks the delivery sent, schedules the
// next retry, or gives up. Returns true when this attempt succeeded.
func (d *Dispatcher) attempt(ctx context.Context, deliveryID string, msg Message) bool {
	d.mu.Lock()
	delivery, ok := d.deliveries[deliveryID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delivery.Attempts++
	attempts := delivery.Attempts
	channel := delivery.Channel
	address := delivery.Address
	d.mu.Unlock()

	var err error
	switch channel {
	case ChannelEmail:
		if d.email == nil {
			err = errors.New("email transport not configured")
		} else {
			err = d.email.SendEmail(ctx, address, msg.Subject, msg.Body)
		}
	case ChannelSMS:
		if d.sms == nil {
			err = errors.New("sms transport not configured")
		} else {
			err = d.sms.SendSMS(ctx, address, msg.Body)
		}
	}

	d.mu.Lock()
	if err == nil {
		delivery.Status = "sent"
		sentAt := time.Now().UTC()
		delivery.SentAt = &sentAt
		d.mu.Unlock()
		return true
	}
	delivery.LastError = err.Error()

	exhausted := attempts >= delivery.MaxAttempts
	pastDeadline := time.Now().UTC().After(delivery.Deadline)
	if exhausted || pastDeadline {
		delivery.Status = "failed"
	}
	event := delivery.Event
	d.mu.Unlock()

	if exhausted || pastDeadline {
		d.log.Error().
			Err(err).
			Str("delivery_id", deliveryID).
			Str("event", event).
			Str("channel", string(channel)).
			Int("attempts", attempts).
			Msg("notification delivery exhausted retries")
		return false
	}

	delay := d.cfg.BackoffBase << (attempts - 1)
	d.log.Warn().
		Err(err).
		Str("delivery_id", deliveryID).
		Str("channel", string(channel)).
		Int("attempt", attempts).
		Dur("retry_in", delay).
		Msg("notification delivery failed, retry scheduled")

	// Retries are detached from the triggering request.
	d.sched.ScheduleAfter(delay, func() {
		d.attempt(context.Background(), deliveryID, msg)
	})
	return false
}

// Delivery returns a copy of one tracked delivery.
func (d *Dispatcher) Delivery(id string) (Delivery, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	delivery, ok := d.deliveries[id]
	if !ok {
		return Delivery{}, false
	}
	return *delivery, true
}

// Deliveries returns a copy of the tracking table.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Delivery, 0, len(d.deliveries))
	for _, delivery := range d.deliveries {
		out = append(out, *delivery)
	}
	return out
}

// Stats returns delivery counts grouped by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := make(map[string]int)
	for _, delivery := range d.deliveries {
		stats[delivery.Status]++
	}
	return stats
}
