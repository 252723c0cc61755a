// Package autonav drills into a record identified by the host page URL.
package autonav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maruel/kvedit/internal/editor"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/notify"
)

// DefaultPattern captures a UUID anywhere in the URL.
const DefaultPattern = `([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`

// DefaultTimeout bounds every wait of a run.
const DefaultTimeout = 10 * time.Second

// Config drives the heuristic.
type Config struct {
	// Pattern has exactly one capture group: the identifier.
	Pattern         *regexp.Regexp
	DatabaseKeyword string
	StoreKeywords   []string
	Timeout         time.Duration
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Pattern:         regexp.MustCompile(DefaultPattern),
		DatabaseKeyword: "app",
		StoreKeywords:   []string{"record", "item"},
		Timeout:         DefaultTimeout,
	}
}

// Validate reports settings that can never match.
func (c *Config) Validate() error {
	if c.Pattern == nil {
		return errors.New("autonav: pattern is required")
	}
	if n := c.Pattern.NumSubexp(); n != 1 {
		return fmt.Errorf("autonav: pattern must have exactly one capture group, has %d", n)
	}
	if c.DatabaseKeyword == "" {
		return errors.New("autonav: database keyword is required")
	}
	if len(c.StoreKeywords) == 0 || slices.Contains(c.StoreKeywords, "") {
		return errors.New("autonav: store keywords must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("autonav: timeout must be positive")
	}
	return nil
}

// ExtractIdentifier returns the identifier captured from pageURL. UUIDs are
// returned in their canonical lowercase form.
func (c *Config) ExtractIdentifier(pageURL string) (string, bool) {
	if c.Pattern == nil {
		return "", false
	}
	m := c.Pattern.FindStringSubmatch(pageURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	if u, err := uuid.Parse(m[1]); err == nil {
		return u.String(), true
	}
	return m[1], true
}

// Result is how far a run got.
type Result struct {
	Database string         `json:"database,omitempty"`
	Store    string         `json:"store,omitempty"`
	Matches  int            `json:"matches"`
	Key      hoststore.Key  `json:"key,omitempty"`
	Record   *models.Record `json:"-"`
}

// Navigator runs the heuristic against an editor.
type Navigator struct {
	cfg      Config
	notifier notify.Notifier
}

// New returns a Navigator. cfg must be valid.
func New(cfg Config, n notify.Notifier) *Navigator {
	return &Navigator{cfg: cfg, notifier: n}
}

// Config returns the settings in use.
func (n *Navigator) Config() Config {
	return n.cfg
}

// Run selects the first database named like the database keyword, the first
// of its stores named like a store keyword, then looks for identifier among
// the records. A failure ends the run where it happened; the selection made
// so far is kept.
func (n *Navigator) Run(ctx context.Context, e *editor.Editor, identifier string) (Result, error) {
	var res Result
	dbs, err := e.LoadDatabases(ctx)
	if err != nil {
		return res, err
	}
	i := slices.IndexFunc(dbs, func(d models.DatabaseDescriptor) bool {
		return containsFold(d.Name, n.cfg.DatabaseKeyword)
	})
	if i < 0 {
		return res, n.abort(apierrors.NotFound(fmt.Sprintf("Database matching %q", n.cfg.DatabaseKeyword)))
	}
	res.Database = dbs[i].Name
	if err := n.wait(ctx, e.SelectDatabase(res.Database), "database "+res.Database); err != nil {
		return res, err
	}

	stores := e.Snapshot().Stores
	j := slices.IndexFunc(stores, func(s models.StoreDescriptor) bool {
		return slices.ContainsFunc(n.cfg.StoreKeywords, func(kw string) bool { return containsFold(s.Name, kw) })
	})
	if j < 0 {
		return res, n.abort(apierrors.NotFound(fmt.Sprintf("Store matching %s in %s", strings.Join(n.cfg.StoreKeywords, " or "), res.Database)))
	}
	res.Store = stores[j].Name
	if err := n.wait(ctx, e.SelectStore(res.Store), "store "+res.Store); err != nil {
		return res, err
	}
	if identifier == "" {
		return res, nil
	}
	return n.searchForID(e, identifier, res)
}

// searchForID filters by identifier and opens the record it designates, if
// there is exactly one.
func (n *Navigator) searchForID(e *editor.Editor, identifier string, res Result) (Result, error) {
	matches := e.Filter(identifier)
	res.Matches = len(matches)
	var exact []models.Record
	for _, r := range matches {
		if strings.EqualFold(hoststore.KeyString(r.Key), identifier) {
			exact = append(exact, r)
		}
	}
	var pick *models.Record
	switch {
	case len(exact) == 1:
		pick = &exact[0]
	case len(matches) == 1:
		pick = &matches[0]
	}
	if pick == nil {
		if len(matches) == 0 {
			n.notifier.Notify(notify.Info, "No record matches "+identifier)
		} else {
			n.notifier.Notify(notify.Info, fmt.Sprintf("%d records match %s", len(matches), identifier))
		}
		return res, nil
	}
	if err := e.ViewRecord(pick.Key); err != nil {
		return res, n.abort(err)
	}
	res.Key = pick.Key
	res.Record = pick
	n.notifier.Notify(notify.Info, "Found record: "+hoststore.KeyString(pick.Key))
	return res, nil
}

// wait blocks until op settles, for at most the configured timeout. The
// editor already reported the failures of op itself.
func (n *Navigator) wait(ctx context.Context, op *editor.Op, what string) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	err := op.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return n.abort(apierrors.Timeout(what).Wrap(err))
	case errors.Is(err, context.Canceled):
		slog.DebugContext(ctx, "autonav", "msg", "canceled", "waiting_for", what)
		return err
	default:
		return err
	}
}

func (n *Navigator) abort(err error) error {
	slog.Info("autonav", "msg", "aborted", "err", err)
	n.notifier.Notify(notify.Error, err.Error())
	return err
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
