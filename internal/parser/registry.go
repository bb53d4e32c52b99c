package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// Decoder turns one record read from a source into a raw log line.
// ok is false for records that carry no line (blank, malformed envelope).
type Decoder interface {
	Decode(record string) (line string, ok bool)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(record string) (string, bool)

func (f DecoderFunc) Decode(record string) (string, bool) { return f(record) }

// registry maps decoder names to factory functions
var registry = map[string]func() Decoder{}

// Register adds a decoder factory to the registry.
// Called by each decoder's init() function.
func Register(name string, factory func() Decoder) {
	registry[name] = factory
}

// Get returns a new instance of the decoder for the given name.
func Get(name string) (Decoder, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown decoder: %q (available: %v)", name, AvailableDecoders())
	}
	return factory(), nil
}

// AvailableDecoders returns the sorted names of registered decoders.
func AvailableDecoders() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	DecoderPlain       = "plain"
	DecoderRFC3164     = "rfc3164"
	DecoderJournalJSON = "journal-json"
)

func init() {
	Register(DecoderPlain, func() Decoder { return DecoderFunc(decodePlain) })
	Register(DecoderRFC3164, func() Decoder { return DecoderFunc(decodeRFC3164) })
}

func decodePlain(record string) (string, bool) {
	if strings.TrimSpace(record) == "" {
		return "", false
	}
	return record, true
}

// <34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8
var priPrefix = regexp.MustCompile(`^<\d{1,3}>`)

func decodeRFC3164(record string) (string, bool) {
	line := strings.TrimRight(priPrefix.ReplaceAllString(record, ""), "\r\n\x00")
	return decodePlain(line)
}

// ReadRecords calls fn with each newline-terminated record in r, without the
// trailing "\r\n". Records may be any length. It stops when fn returns false
// or r is exhausted; io.EOF is not an error.
func ReadRecords(r io.Reader, fn func(record string) bool) error {
	br := bufio.NewReader(r)
	for {
		s, err := br.ReadString('\n')
		if s != "" && !fn(strings.TrimRight(s, "\r\n")) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
