// Package directive parses the textual process directives accepted by
// the orchestrator. One directive describes one process:
//
//	NAME? (#COLOR)? (+DELAY|+DEPNAME)? (|ACTION)* = COMMAND
//
// Examples:
//
//	API#green=textual serve api.py --port 8001
//	MONITOR#yellow+API=textual serve monitor.py
//	DB#blue|silent=mongod --quiet
//	CLEANUP+5|end=echo done
package directive

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Color is a presentation tag attached to a process's output. It has no
// effect on scheduling.
type Color string

const (
	ColorNone    Color = ""
	ColorRed     Color = "red"
	ColorGreen   Color = "green"
	ColorYellow  Color = "yellow"
	ColorBlue    Color = "blue"
	ColorMagenta Color = "magenta"
	ColorCyan    Color = "cyan"
	ColorWhite   Color = "white"
	ColorGray    Color = "gray"
)

var palette = map[Color]struct{}{
	ColorRed:     {},
	ColorGreen:   {},
	ColorYellow:  {},
	ColorBlue:    {},
	ColorMagenta: {},
	ColorCyan:    {},
	ColorWhite:   {},
	ColorGray:    {},
}

func ParseColor(raw string) (Color, bool) {
	color := Color(strings.ToLower(raw))
	_, ok := palette[color]
	return color, ok
}

// Action is a behavior flag on a directive. The set is closed; unknown
// tokens are rejected at parse time.
type Action string

const (
	// ActionSilent drops both output streams.
	ActionSilent Action = "silent"
	// ActionNoStdout drops stdout only.
	ActionNoStdout Action = "noout"
	// ActionNoStderr drops stderr only.
	ActionNoStderr Action = "noerr"
	// ActionEndsGroup terminates the whole group once this process
	// exits, successfully or not.
	ActionEndsGroup Action = "end"
	// ActionPTY runs the command under a pseudo-terminal. Full-screen
	// terminal programs refuse to start without one.
	ActionPTY Action = "tty"
)

func parseAction(raw string) (Action, bool) {
	action := Action(strings.ToLower(raw))
	switch action {
	case ActionSilent, ActionNoStdout, ActionNoStderr, ActionEndsGroup, ActionPTY:
		return action, true
	}
	return "", false
}

type StartKind int

const (
	// StartImmediate starts the process as soon as the group starts.
	StartImmediate StartKind = iota
	// StartAfterDelay starts the process a fixed delay after group start.
	StartAfterDelay
	// StartAfterProcess starts the process once the named predecessor
	// has succeeded.
	StartAfterProcess
)

// Start is a directive's start condition. Exactly one kind holds.
type Start struct {
	Kind  StartKind
	Delay time.Duration
	After string
}

// Directive is one parsed process description.
type Directive struct {
	Name      string
	Generated bool
	Color     Color
	Start     Start
	Actions   []Action
	Command   string
}

func (d Directive) HasAction(action Action) bool {
	for _, a := range d.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (d Directive) SuppressStdout() bool {
	return d.HasAction(ActionSilent) || d.HasAction(ActionNoStdout)
}

func (d Directive) SuppressStderr() bool {
	return d.HasAction(ActionSilent) || d.HasAction(ActionNoStderr)
}

// String reserializes the directive. Generated names are omitted so the
// output parses back to an equivalent directive.
func (d Directive) String() string {
	builder := strings.Builder{}
	if !d.Generated {
		builder.WriteString(escapeHeader(d.Name))
	}
	if d.Color != ColorNone {
		builder.WriteString("#")
		builder.WriteString(string(d.Color))
	}
	switch d.Start.Kind {
	case StartAfterDelay:
		builder.WriteString("+")
		builder.WriteString(strconv.Itoa(int(d.Start.Delay / time.Second)))
	case StartAfterProcess:
		builder.WriteString("+")
		builder.WriteString(d.Start.After)
	}
	for _, action := range d.Actions {
		builder.WriteString("|")
		builder.WriteString(string(action))
	}
	builder.WriteString("=")
	builder.WriteString(d.Command)
	return builder.String()
}

// MalformedError reports a directive that does not match the grammar,
// naming the offending substring.
type MalformedError struct {
	Directive string
	Offending string
	Reason    string
}

func (e *MalformedError) Error() string {
	if e.Offending == "" || e.Offending == e.Directive {
		return fmt.Sprintf("malformed directive %q: %s", e.Directive, e.Reason)
	}
	return fmt.Sprintf("malformed directive %q: %s: %q", e.Directive, e.Reason, e.Offending)
}

// Parse parses one directive string. Position is the zero-based index
// of the directive within its batch; it names anonymous processes.
func Parse(raw string, position int) (Directive, error) {
	eq := findCommandSeparator(raw)
	if eq < 0 {
		return Directive{}, &MalformedError{Directive: raw, Reason: "missing '=' before command"}
	}

	command := strings.TrimSpace(raw[eq+1:])
	if command == "" {
		return Directive{}, &MalformedError{Directive: raw, Reason: "empty command"}
	}

	header := strings.TrimSpace(unescapeHeader(raw[:eq]))
	d := Directive{Command: command}

	name, rest := splitToken(header, "#+|")
	if name != "" && !isValidName(name) {
		return Directive{}, &MalformedError{Directive: raw, Offending: name, Reason: "invalid process name"}
	}
	d.Name = name
	if name == "" {
		d.Name = fmt.Sprintf("proc-%d", position+1)
		d.Generated = true
	}

	sawStart := false
	sawAction := false
	for rest != "" {
		marker := rest[0]
		var token string
		token, rest = splitToken(rest[1:], "#+|")
		switch marker {
		case '#':
			if d.Color != ColorNone {
				return Directive{}, &MalformedError{Directive: raw, Offending: "#" + token, Reason: "duplicate color"}
			}
			if sawStart || sawAction {
				return Directive{}, &MalformedError{Directive: raw, Offending: "#" + token, Reason: "color must precede dependency and actions"}
			}
			color, ok := ParseColor(token)
			if !ok {
				return Directive{}, &MalformedError{Directive: raw, Offending: token, Reason: "unknown color"}
			}
			d.Color = color
		case '+':
			if sawStart {
				return Directive{}, &MalformedError{Directive: raw, Offending: "+" + token, Reason: "duplicate dependency"}
			}
			if sawAction {
				return Directive{}, &MalformedError{Directive: raw, Offending: "+" + token, Reason: "dependency must precede actions"}
			}
			start, err := parseStart(raw, token)
			if err != nil {
				return Directive{}, err
			}
			d.Start = start
			sawStart = true
		case '|':
			action, ok := parseAction(token)
			if !ok {
				return Directive{}, &MalformedError{Directive: raw, Offending: token, Reason: "unknown action"}
			}
			if !d.HasAction(action) {
				d.Actions = append(d.Actions, action)
			}
			sawAction = true
		}
	}

	return d, nil
}

// ParseAll parses an ordered batch. The first malformed directive
// rejects the whole batch.
func ParseAll(raw []string) ([]Directive, error) {
	directives := make([]Directive, 0, len(raw))
	for i, line := range raw {
		d, err := Parse(line, i)
		if err != nil {
			return nil, err
		}
		directives = append(directives, d)
	}
	resolveGeneratedNames(directives)
	return directives, nil
}

// resolveGeneratedNames keeps generated proc-N names unique within the
// batch: a user is free to pick a name of the same shape, so an
// anonymous directive bumps its suffix past any taken name.
func resolveGeneratedNames(directives []Directive) {
	taken := make(map[string]struct{}, len(directives))
	for _, d := range directives {
		if !d.Generated {
			taken[d.Name] = struct{}{}
		}
	}
	for i := range directives {
		if !directives[i].Generated {
			continue
		}
		suffix := i + 1
		name := directives[i].Name
		for {
			if _, clash := taken[name]; !clash {
				break
			}
			suffix++
			name = fmt.Sprintf("proc-%d", suffix)
		}
		directives[i].Name = name
		taken[name] = struct{}{}
	}
}

// parseStart applies the precedence rule: an all-digit token is always
// a delay in seconds, never a process name.
func parseStart(raw, token string) (Start, error) {
	if token == "" {
		return Start{}, &MalformedError{Directive: raw, Offending: "+", Reason: "empty dependency"}
	}
	if isDigits(token) {
		seconds, err := strconv.Atoi(token)
		if err != nil {
			return Start{}, &MalformedError{Directive: raw, Offending: token, Reason: "invalid delay"}
		}
		return Start{Kind: StartAfterDelay, Delay: time.Duration(seconds) * time.Second}, nil
	}
	if !isValidName(token) {
		return Start{}, &MalformedError{Directive: raw, Offending: token, Reason: "invalid dependency name"}
	}
	return Start{Kind: StartAfterProcess, After: token}, nil
}

// findCommandSeparator returns the index of the first '=' not escaped
// by a backslash, or -1.
func findCommandSeparator(raw string) int {
	escaped := false
	for i := 0; i < len(raw); i++ {
		switch {
		case escaped:
			escaped = false
		case raw[i] == '\\':
			escaped = true
		case raw[i] == '=':
			return i
		}
	}
	return -1
}

func unescapeHeader(header string) string {
	if !strings.Contains(header, "\\") {
		return header
	}
	builder := strings.Builder{}
	escaped := false
	for i := 0; i < len(header); i++ {
		if escaped {
			builder.WriteByte(header[i])
			escaped = false
			continue
		}
		if header[i] == '\\' {
			escaped = true
			continue
		}
		builder.WriteByte(header[i])
	}
	if escaped {
		builder.WriteByte('\\')
	}
	return builder.String()
}

func escapeHeader(name string) string {
	return strings.ReplaceAll(name, "=", "\\=")
}

func splitToken(s, delimiters string) (string, string) {
	index := strings.IndexAny(s, delimiters)
	if index < 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:index]), s[index:]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isValidName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		alpha := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		digit := c >= '0' && c <= '9'
		if i == 0 && !alpha {
			return false
		}
		if !alpha && !digit && c != '-' {
			return false
		}
	}
	return true
}
