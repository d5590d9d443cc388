// Package host provides the services the launcher host offers to the plugin:
// translated strings and user notifications.
package host

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Translation keys used by the program plugin
const (
	KeyPluginName           = "wox_plugin_program_plugin_name"
	KeyPluginDescription    = "wox_plugin_program_plugin_description"
	KeyDisableProgram       = "wox_plugin_program_disable_program"
	KeyEnableProgram        = "wox_plugin_program_enable_program"
	KeyDisableSuccess       = "wox_plugin_program_disable_dlgtitle_success"
	KeyDisableSuccessDetail = "wox_plugin_program_disable_dlgtitle_success_message"
	KeyOpenContainingFolder = "wox_plugin_program_open_containing_folder"
	KeyRunInTerminal        = "wox_plugin_program_run_in_terminal"
	KeyLaunchFailedTitle    = "wox_plugin_program_launch_failed_title"
	KeyLaunchFailedMessage  = "wox_plugin_program_launch_failed_message"
)

// API is implemented by the host
type API interface {
	Translate(key string) string
	ShowMsg(title, subtitle string)
}

//go:embed lang/en.yaml
var english []byte

// Message is a notification shown through ShowMsg
type Message struct {
	Title    string
	Subtitle string
}

// Console is an API that translates from the embedded English table and
// writes notifications to the log
type Console struct {
	logger  *log.Logger
	strings map[string]string

	mu     sync.Mutex
	recent []Message
}

const recentMessages = 16

// NewConsole creates a console host
func NewConsole(logger *log.Logger) (*Console, error) {
	table := make(map[string]string)
	if err := yaml.Unmarshal(english, &table); err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}
	return &Console{logger: logger, strings: table}, nil
}

// Translate returns the English string for key, or the key itself
func (c *Console) Translate(key string) string {
	if s, ok := c.strings[key]; ok {
		return s
	}
	return key
}

// ShowMsg logs the notification and keeps it for Recent
func (c *Console) ShowMsg(title, subtitle string) {
	c.logger.Info(title, "msg", subtitle)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, Message{Title: title, Subtitle: subtitle})
	if len(c.recent) > recentMessages {
		c.recent = c.recent[len(c.recent)-recentMessages:]
	}
}

// Recent returns the latest notifications, oldest first
func (c *Console) Recent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.recent...)
}
