// Package loglevel maps the level names agents attach to captured log
// records onto one short upper-case form.
package loglevel

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	Trace = "TRACE"
	Debug = "DEBUG"
	Info  = "INFO"
	Warn  = "WARN"
	Error = "ERROR"
	Fatal = "FATAL"
)

var textLevel = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

var aliases = map[string]string{
	"TRACE": Trace, "TRAC": Trace, "TRC": Trace, "FINEST": Trace,
	"DEBUG": Debug, "DEBU": Debug, "DBG": Debug, "DEB": Debug, "FINE": Debug, "FINER": Debug,
	"INFO": Info, "INFORMATION": Info, "INF": Info, "CONFIG": Info,
	"WARN": Warn, "WARNING": Warn, "WRNG": Warn, "WRN": Warn,
	"ERROR": Error, "ERR": Error, "ERRO": Error, "SEVERE": Error,
	"FATAL": Fatal, "FATL": Fatal, "FTL": Fatal, "CRITICAL": Fatal, "CRIT": Fatal, "CRT": Fatal,
	"PANIC": Fatal, "PNC": Fatal,
}

var prefixes = map[string]string{
	"TRAC": Trace,
	"DEBU": Debug,
	"INFO": Info,
	"WARN": Warn,
	"ERRO": Error,
	"FATA": Fatal,
	"CRIT": Fatal,
}

// Normalize maps a reported level such as "warning", "ERR" or a numeric
// pino level onto one of the canonical levels. Unknown values become INFO.
func Normalize(level string) string {
	upper := strings.ToUpper(strings.TrimSpace(level))
	if n, err := strconv.Atoi(upper); err == nil {
		return fromNumber(n)
	}
	if l, ok := aliases[upper]; ok {
		return l
	}
	if len(upper) >= 4 {
		if l, ok := prefixes[upper[:4]]; ok {
			return l
		}
	}
	return Info
}

// FromText returns the first level word found in content, or INFO.
func FromText(content string) string {
	m := textLevel.FindStringSubmatch(content)
	if len(m) < 2 {
		return Info
	}
	return Normalize(m[1])
}

// Resolve prefers the reported level and falls back to scanning content.
func Resolve(level, content string) string {
	if strings.TrimSpace(level) != "" {
		return Normalize(level)
	}
	return FromText(content)
}

// fromNumber reads pino/bunyan numeric levels.
func fromNumber(n int) string {
	switch {
	case n < 20:
		return Trace
	case n < 30:
		return Debug
	case n < 40:
		return Info
	case n < 50:
		return Warn
	case n < 60:
		return Error
	}
	return Fatal
}
