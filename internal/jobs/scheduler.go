package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"contactbook/internal/config"
	"contactbook/internal/mail"
	"contactbook/internal/models"
	"contactbook/internal/service"
)

const digestPageSize = 100

type ConfirmedUsers interface {
	ListConfirmed(ctx context.Context, limit, offset int) ([]models.User, error)
}

type ContactLister interface {
	ListAll(ctx context.Context, userID string) ([]models.Contact, error)
}

// Sweeper drops expired entries from an in-process cache.
type Sweeper interface {
	Sweep() int
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      config.JobsConfig
	users    ConfirmedUsers
	contacts ContactLister
	mailer   mail.Sender
	sweeper  Sweeper
	now      func() time.Time
	log      zerolog.Logger
}

func NewScheduler(cfg config.JobsConfig, users ConfirmedUsers, contacts ContactLister, mailer mail.Sender, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		users:    users,
		contacts: contacts,
		mailer:   mailer,
		now:      time.Now,
		log:      log,
	}
}

func (s *Scheduler) WithSweeper(sweeper Sweeper) *Scheduler {
	s.sweeper = sweeper
	return s
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Start() error {
	if s.cfg.BirthdayDigest != "" {
		if _, err := s.cron.AddFunc(s.cfg.BirthdayDigest, s.runDigest); err != nil {
			return fmt.Errorf("schedule birthday digest: %w", err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sent, err := s.RunDigest(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("sent", sent).Msg("birthday digest failed")
		return
	}
	s.log.Info().Int("sent", sent).Msg("birthday digest finished")
}

func (s *Scheduler) sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.log.Debug().Int("evicted", n).Msg("session cache swept")
	}
}

// RunDigest mails every confirmed user whose contacts have a birthday within
// the configured window. Users without upcoming birthdays get nothing. A
// failed send is logged and the run moves on to the next user.
func (s *Scheduler) RunDigest(ctx context.Context) (int, error) {
	days := s.cfg.DigestDays
	if days <= 0 {
		days = 7
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	sent := 0
	for offset := 0; ; offset += digestPageSize {
		users, err := s.users.ListConfirmed(ctx, digestPageSize, offset)
		if err != nil {
			return sent, fmt.Errorf("list confirmed users: %w", err)
		}

		for _, user := range users {
			ok, err := s.digestFor(ctx, user, today, days)
			if err != nil {
				if ctx.Err() != nil {
					return sent, ctx.Err()
				}
				s.log.Warn().Err(err).Str("user_id", user.ID).Msg("birthday digest skipped")
				continue
			}
			if ok {
				sent++
			}
		}

		if len(users) < digestPageSize {
			return sent, nil
		}
	}
}

func (s *Scheduler) digestFor(ctx context.Context, user models.User, today time.Time, days int) (bool, error) {
	contacts, err := s.contacts.ListAll(ctx, user.ID)
	if err != nil {
		return false, err
	}

	upcoming := service.UpcomingBirthdays(contacts, today, days)
	if len(upcoming) == 0 {
		return false, nil
	}

	entries := make([]mail.DigestEntry, 0, len(upcoming))
	for _, c := range upcoming {
		entries = append(entries, mail.DigestEntry{
			Name:  c.FirstName + " " + c.LastName,
			Email: c.Email,
			Phone: c.Phone,
			Date:  service.NextBirthday(c.Birthday, today),
		})
	}

	msg, err := mail.BirthdayDigestMessage(user.Email, mail.DigestData{
		Username: user.Username,
		Days:     days,
		Entries:  entries,
	})
	if err != nil {
		return false, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}
