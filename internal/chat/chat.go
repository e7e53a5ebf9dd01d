// Package chat implements the interactive terminal session.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ekomarov/gemchat/internal/attach"
	"github.com/ekomarov/gemchat/internal/controller"
	"github.com/ekomarov/gemchat/internal/llm"
	"github.com/ekomarov/gemchat/internal/markdown"
	"github.com/ekomarov/gemchat/internal/session"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Chat runs the interactive loop over a controller
type Chat struct {
	controller *controller.Controller
	store      *session.Store
	renderer   *markdown.Renderer
	in         io.Reader
	out        io.Writer

	pending []session.Attachment
	printed string
}

// New creates the interactive chat surface
func New(ctrl *controller.Controller, store *session.Store, renderer *markdown.Renderer, in io.Reader, out io.Writer) *Chat {
	return &Chat{
		controller: ctrl,
		store:      store,
		renderer:   renderer,
		in:         in,
		out:        out,
	}
}

// Run reads input lines until EOF or /exit
func (c *Chat) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, infoStyle.Render("gemchat — введите сообщение, /help для списка команд"))
	fmt.Fprintln(c.out, infoStyle.Render("Модель: "+c.controller.Model()))
	fmt.Fprintln(c.out)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if c.handleCommand(ctx, input) {
				break
			}
			continue
		}

		c.send(ctx, input)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// SendOnce runs a single non-interactive turn and prints the rendered reply
func (c *Chat) SendOnce(ctx context.Context, text string) error {
	active := c.store.Active()
	err := c.controller.SendMessage(ctx, active.ID, text, nil)
	if err != nil {
		if history, herr := c.store.History(active.ID); herr == nil && len(history) > 0 {
			fmt.Fprintln(c.out, history[len(history)-1].Text)
		}
		return err
	}
	c.printFinal(active.ID)
	c.printSources(active.ID)
	return nil
}

func (c *Chat) send(ctx context.Context, text string) {
	active := c.store.Active()
	attachments := c.pending
	c.pending = nil

	c.printed = ""
	c.controller.OnMessageUpdated = func(sessionID, messageID string) {
		c.printDelta(sessionID, messageID)
	}
	defer func() { c.controller.OnMessageUpdated = nil }()

	err := c.controller.SendMessage(ctx, active.ID, text, attachments)
	fmt.Fprintln(c.out)
	if err == nil {
		c.printFinal(active.ID)
	}
	c.printSources(active.ID)
	fmt.Fprintln(c.out)
}

// printDelta prints the suffix the cumulative chunk added. Informational
// notices arrive as full replacements, those start on a fresh line.
func (c *Chat) printDelta(sessionID, messageID string) {
	history, err := c.store.History(sessionID)
	if err != nil {
		return
	}
	var text string
	for _, msg := range history {
		if msg.ID == messageID {
			text = msg.Text
			break
		}
	}
	if text == c.printed {
		return
	}
	if strings.HasPrefix(text, c.printed) {
		fmt.Fprint(c.out, text[len(c.printed):])
	} else {
		fmt.Fprint(c.out, "\n"+text)
	}
	c.printed = text
}

// printFinal re-renders the last reply through glamour
func (c *Chat) printFinal(sessionID string) {
	history, err := c.store.History(sessionID)
	if err != nil || len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if last.Role != session.RoleModel || strings.HasPrefix(last.Text, llm.ErrorPrefix) {
		return
	}
	rendered, err := c.renderer.Render(last.Text)
	if err != nil || strings.TrimSpace(rendered) == "" {
		return
	}
	fmt.Fprintln(c.out, infoStyle.Render("───"))
	fmt.Fprintln(c.out, rendered)
}

func (c *Chat) printSources(sessionID string) {
	history, err := c.store.History(sessionID)
	if err != nil || len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if len(last.Sources) == 0 {
		return
	}
	fmt.Fprintln(c.out, sourceStyle.Render("Источники:"))
	for i, src := range last.Sources {
		fmt.Fprintln(c.out, sourceStyle.Render(fmt.Sprintf("  %d. %s — %s", i+1, src.Title, src.URI)))
	}
}

// handleCommand dispatches a slash command, returning true on exit
func (c *Chat) handleCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	command, args := parts[0], parts[1:]

	switch command {
	case "/help":
		c.showHelp()
	case "/new":
		sess := c.controller.CreateSession()
		fmt.Fprintf(c.out, "Создан новый чат %s\n", shortID(sess.ID))
	case "/list":
		c.listSessions()
	case "/switch":
		c.switchSession(args)
	case "/delete":
		c.deleteSession(args)
	case "/model":
		if len(args) == 0 {
			fmt.Fprintf(c.out, "Текущая модель: %s\n", c.controller.Model())
		} else {
			c.controller.SetModel(ctx, args[0])
			fmt.Fprintf(c.out, "Модель переключена на %s\n", args[0])
		}
	case "/search":
		c.toggleSearch(args)
	case "/attach":
		c.attachFile(args)
	case "/continue":
		c.continueGeneration(ctx)
	case "/exit", "/quit":
		fmt.Fprintln(c.out, "До встречи!")
		return true
	default:
		fmt.Fprintf(c.out, "Неизвестная команда: %s\nВведите /help для списка команд.\n", command)
	}
	return false
}

func (c *Chat) showHelp() {
	fmt.Fprintln(c.out, "Доступные команды:")
	fmt.Fprintln(c.out, "  /new            - новый чат")
	fmt.Fprintln(c.out, "  /list           - список чатов")
	fmt.Fprintln(c.out, "  /switch <N>     - переключиться на чат N")
	fmt.Fprintln(c.out, "  /delete [N]     - удалить чат N (без аргумента: текущий)")
	fmt.Fprintln(c.out, "  /model [имя]    - показать или сменить модель")
	fmt.Fprintln(c.out, "  /search [on|off]- поиск Google для ответов")
	fmt.Fprintln(c.out, "  /attach <файл>  - приложить файл к следующему сообщению")
	fmt.Fprintln(c.out, "  /continue       - продолжить оборванный ответ")
	fmt.Fprintln(c.out, "  /exit           - выход")
}

func (c *Chat) listSessions() {
	active := c.store.Active()
	for i, sess := range c.store.Sessions() {
		marker := "  "
		if active != nil && sess.ID == active.ID {
			marker = "* "
		}
		fmt.Fprintf(c.out, "%s%d. %s (%d сообщений)\n", marker, i+1, sess.Title, len(sess.Messages))
	}
}

func (c *Chat) switchSession(args []string) {
	sess, ok := c.sessionByArg(args)
	if !ok {
		return
	}
	if err := c.store.SetActive(sess.ID); err != nil {
		fmt.Fprintf(c.out, "Ошибка: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Текущий чат: %s\n", sess.Title)
}

func (c *Chat) deleteSession(args []string) {
	var id string
	if len(args) == 0 {
		id = c.store.Active().ID
	} else {
		sess, ok := c.sessionByArg(args)
		if !ok {
			return
		}
		id = sess.ID
	}
	if err := c.controller.DeleteSession(id); err != nil {
		fmt.Fprintf(c.out, "Ошибка: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Чат удалён, текущий: %s\n", c.store.Active().Title)
}

// sessionByArg resolves a 1-based list index
func (c *Chat) sessionByArg(args []string) (*session.ChatSession, bool) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Укажите номер чата из /list")
		return nil, false
	}
	sessions := c.store.Sessions()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(sessions) {
		fmt.Fprintf(c.out, "Нет чата с номером %q\n", args[0])
		return nil, false
	}
	return sessions[n-1], true
}

func (c *Chat) toggleSearch(args []string) {
	switch {
	case len(args) == 0:
		c.controller.SetSearchEnabled(!c.controller.SearchEnabled())
	case args[0] == "on":
		c.controller.SetSearchEnabled(true)
	case args[0] == "off":
		c.controller.SetSearchEnabled(false)
	default:
		fmt.Fprintln(c.out, "Использование: /search [on|off]")
		return
	}
	if c.controller.SearchEnabled() {
		fmt.Fprintln(c.out, "Поиск Google включён")
	} else {
		fmt.Fprintln(c.out, "Поиск Google выключен")
	}
}

func (c *Chat) attachFile(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Использование: /attach <путь к файлу>")
		return
	}
	att, err := attach.EncodeFile(strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(c.out, "Ошибка: %v\n", err)
		return
	}
	c.pending = append(c.pending, att)
	fmt.Fprintf(c.out, "Файл %s (%d байт) будет отправлен со следующим сообщением\n", att.Name, att.Size)
}

func (c *Chat) continueGeneration(ctx context.Context) {
	active := c.store.Active()
	c.printed = ""
	c.controller.OnMessageUpdated = func(sessionID, messageID string) {
		c.printDelta(sessionID, messageID)
	}
	defer func() { c.controller.OnMessageUpdated = nil }()

	err := c.controller.ContinueGeneration(ctx, active.ID)
	fmt.Fprintln(c.out)
	if err == nil {
		c.printFinal(active.ID)
	}
	fmt.Fprintln(c.out)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
