// Package bridge interprets the game's protocol lines and turns accepted
// recognitions into outbound commands.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/dsnbridge/internal/commands"
	"github.com/rbright/dsnbridge/internal/dialogue"
	"github.com/rbright/dsnbridge/internal/favorites"
	"github.com/rbright/dsnbridge/internal/grammar"
	"github.com/rbright/dsnbridge/internal/observe"
	"github.com/rbright/dsnbridge/internal/queue"
	"github.com/rbright/dsnbridge/internal/recognizer"
)

// Inbound protocol commands.
const (
	CmdStartDialogue = "START_DIALOGUE"
	CmdStopDialogue  = "STOP_DIALOGUE"
	CmdFavorites     = "FAVORITES"
)

// Outbound protocol commands.
const (
	OutDialogue = "DIALOGUE"
	OutEquip    = "EQUIP"
	OutCommand  = "COMMAND"
)

// Mode names reported by Snapshot.
const (
	ModeCommand  = "command"
	ModeDialogue = "dialogue"
)

// Recognizer is the part of recognizer.Adapter the controller drives.
type Recognizer interface {
	StartRecognition(dialogue bool, sources ...grammar.Source)
}

// Options holds the collaborators of one Controller.
type Options struct {
	Commands  *commands.List
	Favorites favorites.Builder
	Dialogue  dialogue.Options
	Logger    *slog.Logger
	Metrics   *observe.Metrics
}

// Controller owns the current dialogue and favorites. Both are read and
// replaced only under mu, and the recognizer is switched under the same
// lock so its grammar set never disagrees with the controller's mode.
type Controller struct {
	rec          Recognizer
	out          *queue.Queue
	commands     *commands.List
	builder      favorites.Builder
	dialogueOpts dialogue.Options
	logger       *slog.Logger
	metrics      *observe.Metrics

	mu        sync.Mutex
	dialogue  *dialogue.List
	favorites *favorites.Set
}

func New(rec Recognizer, out *queue.Queue, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Dialogue.Logger == nil {
		opts.Dialogue.Logger = opts.Logger
	}
	if opts.Favorites.Logger == nil {
		opts.Favorites.Logger = opts.Logger
	}
	return &Controller{
		rec:          rec,
		out:          out,
		commands:     opts.Commands,
		builder:      opts.Favorites,
		dialogueOpts: opts.Dialogue,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// Start enters command mode.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandModeLocked()
}

// HandleLine interprets one inbound protocol line. Unknown commands are
// ignored. A returned error means the line was rejected and state is
// unchanged.
func (c *Controller) HandleLine(line string) error {
	kind, rest, _ := strings.Cut(strings.TrimRight(line, "\r\n"), "|")
	kind = strings.TrimSpace(kind)
	c.metrics.RecordLine(context.Background(), "in", kind)

	switch kind {
	case CmdStartDialogue:
		return c.startDialogue(rest)
	case CmdStopDialogue:
		c.stopDialogue()
		return nil
	case CmdFavorites:
		c.updateFavorites(rest)
		return nil
	default:
		c.logger.Debug("protocol line ignored", "command", kind)
		return nil
	}
}

func (c *Controller) startDialogue(payload string) error {
	list, err := dialogue.Parse(payload, c.dialogueOpts)
	if err != nil {
		return fmt.Errorf("%s: %w", CmdStartDialogue, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogue = list
	c.logger.Info("dialogue started", "dialogue_id", list.ID, "grammars", len(list.Grammars()))
	c.rec.StartRecognition(true, list)
	return nil
}

func (c *Controller) stopDialogue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialogue != nil {
		c.logger.Info("dialogue stopped", "dialogue_id", c.dialogue.ID)
	}
	c.dialogue = nil
	c.commandModeLocked()
}

func (c *Controller) updateFavorites(payload string) {
	set, ok := c.builder.Build(payload)
	if !ok {
		c.logger.Debug("favorites update ignored: favorites disabled")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.favorites = set
	c.logger.Info("favorites updated", "items", set.Len())
	if c.dialogue == nil {
		c.commandModeLocked()
	}
}

func (c *Controller) commandModeLocked() {
	c.rec.StartRecognition(false, c.commands, c.favorites)
}

// HandleResult maps one accepted recognition to at most one outbound line.
// The mode lock is held until the line is queued.
func (c *Controller) HandleResult(r recognizer.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dialogue != nil {
		idx, ok := c.dialogue.LineIndex(r.Entry)
		if !ok {
			c.logger.Debug("recognition outside the active dialogue", "text", r.Text)
			return
		}
		if idx == dialogue.GoodbyeIndex {
			c.logger.Info("goodbye phrase recognized", "dialogue_id", c.dialogue.ID, "text", r.Text)
		}
		c.submit(fmt.Sprintf("%s|%d|%d", OutDialogue, c.dialogue.ID, idx))
		return
	}

	if equip, ok := c.favorites.EquipCommand(r.Text, r.Entry); ok {
		c.submit(OutEquip + "|" + equip)
		return
	}
	if command, ok := c.commands.CommandFor(r.Entry); ok {
		c.submit(OutCommand + "|" + command)
		return
	}
	c.logger.Debug("recognition matched no command", "text", r.Text)
}

func (c *Controller) submit(line string) {
	if !c.out.Put(line) {
		c.logger.Warn("outbound line dropped: queue closed", "line", line)
		return
	}
	c.logger.Debug("outbound line queued", "line", line)
}

// Run feeds results to HandleResult until ctx is done.
func (c *Controller) Run(ctx context.Context, results <-chan recognizer.Result) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-results:
			c.HandleResult(r)
		}
	}
}

// Snapshot describes the controller state.
type Snapshot struct {
	Mode       string `json:"mode"`
	DialogueID int64  `json:"dialogue_id,omitempty"`
	Favorites  int    `json:"favorites"`
	Commands   int    `json:"commands"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Mode:      ModeCommand,
		Favorites: c.favorites.Len(),
		Commands:  c.commands.Len(),
	}
	if c.dialogue != nil {
		s.Mode = ModeDialogue
		s.DialogueID = c.dialogue.ID
	}
	return s
}
