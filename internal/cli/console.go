package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// consoleSystem is the part of monitor.System the console reads.
type consoleSystem interface {
	Descriptor() backend.Descriptor
	Items() []backend.Item
	WatchedCategories() []backend.Category
	UnprocessedCount(category backend.Category) uint32
	EvictOverflow(max int) int
	MonitoringState() monitor.ThreadState
}

// console prints the item list whenever it changes and turns monitoring
// errors into a terminal error for the watch command.
type console struct {
	monitor.BaseListener

	out      io.Writer
	system   consoleSystem
	logger   *Logger
	maxItems int

	mu   sync.Mutex
	done chan error
	once sync.Once
}

func newConsole(out io.Writer, system consoleSystem, logger *Logger, maxItems int) *console {
	return &console{
		out:      out,
		system:   system,
		logger:   logger,
		maxItems: maxItems,
		done:     make(chan error, 1),
	}
}

// Done delivers the error that ended monitoring.
func (c *console) Done() <-chan error {
	return c.done
}

func (c *console) ItemsChanged(origin monitor.ItemChangeOrigin) {
	if origin == monitor.OriginQueue {
		c.system.EvictOverflow(c.maxItems)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, c.render(c.system.Items()))
}

func (c *console) Warning(event monitor.WarningEvent) {
	c.logger.Warn(event.Message)
}

func (c *console) Error(event monitor.ErrorEvent) {
	if event.Err != nil {
		c.logger.Error(event.Message, "error", event.Err.Error(), "fatal", event.Fatal)
	} else {
		c.logger.Error(event.Message, "fatal", event.Fatal)
	}

	// A failed poll cycle leaves monitoring stopped; nothing else will happen.
	if event.Fatal || c.system.MonitoringState() == monitor.StateStopped {
		c.once.Do(func() {
			c.done <- errors.New(event.Message)
		})
	}
}

func (c *console) render(items []backend.Item) string {
	var b strings.Builder

	counts := make([]string, 0, backend.CategoryCount)
	for _, category := range c.system.WatchedCategories() {
		counts = append(counts, fmt.Sprintf("%s %d", category, c.system.UnprocessedCount(category)))
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s", c.system.Descriptor(), strings.Join(counts, " | "))))
	b.WriteString("\n")

	if len(items) == 0 {
		b.WriteString(dimStyle.Render("(no messages)"))
		b.WriteString("\n")
		return b.String()
	}

	for _, item := range items {
		style := lipgloss.NewStyle()
		if item.Queue.Color != "" {
			style = style.Foreground(lipgloss.Color(item.Queue.Color))
		}
		if item.Processed {
			style = dimStyle
		}

		line := fmt.Sprintf("%-8s %-24s %-28s %s", item.Queue.Category, item.Queue.Name, displayName(item), humanize.Time(item.ArrivedTime))
		if item.Processed {
			line += " (processed)"
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	return b.String()
}

func displayName(item backend.Item) string {
	if item.DisplayName != "" {
		return item.DisplayName
	}
	return item.ID
}
