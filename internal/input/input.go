// Package input reads crab positions from files and from an interactive prompt.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPositions is the sample swarm used when no input is given.
var DefaultPositions = []int{16, 1, 2, 0, 4, 2, 7, 1, 2, 14}

// MinInteractive is the number of positions Collect requires before it
// accepts an empty line.
const MinInteractive = 2

// ErrNotEnoughInput is returned by Collect when input ends before enough
// positions were entered.
var ErrNotEnoughInput = errors.New("not enough positions entered")

// ParseError describes a token that was skipped. It is a warning: parsing
// continues with the remaining tokens.
type ParseError struct {
	Token string
	Index int // Zero-based token (or line) index
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("skipping %q at %d: %v", e.Token, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNegative = errors.New("position must not be negative")

// parseToken converts one token into a position.
func parseToken(token string, index int) (int, *ParseError) {
	v, err := strconv.Atoi(token)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &ParseError{Token: token, Index: index, Err: err}
	}
	if v < 0 {
		return 0, &ParseError{Token: token, Index: index, Err: errNegative}
	}
	return v, nil
}

// ParseList parses comma separated positions, optionally wrapped in braces,
// e.g. "{16,1,2,0,4,2,7,1,2,14}". Whitespace is ignored and empty tokens are
// dropped silently. Tokens that are not non-negative integers are skipped and
// returned as warnings.
func ParseList(r io.Reader) ([]int, []*ParseError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read positions: %w", err)
	}

	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "{")
	text = strings.TrimSuffix(text, "}")

	var (
		positions []int
		warnings  []*ParseError
	)
	for i, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, perr := parseToken(tok, i)
		if perr != nil {
			warnings = append(warnings, perr)
			continue
		}
		positions = append(positions, v)
	}

	return positions, warnings, nil
}

// ReadFile parses the positions stored in path.
func ReadFile(path string) ([]int, []*ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open positions file: %w", err)
	}
	defer f.Close()

	return ParseList(f)
}

// Collect prompts on out for one position per line read from in. An empty
// line ends input once at least minCount positions were accepted. Invalid lines
// are reported on out and returned as warnings.
func Collect(ctx context.Context, in io.Reader, out io.Writer, minCount int) ([]int, []*ParseError, error) {
	scanner := bufio.NewScanner(in)

	var (
		positions []int
		warnings  []*ParseError
	)
	for line := 0; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}

		fmt.Fprintf(out, "Crab %d position (empty line to finish): ", len(positions)+1)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, warnings, fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(out)
			if len(positions) < minCount {
				return nil, warnings, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughInput, len(positions), minCount)
			}
			return positions, warnings, nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			if len(positions) >= minCount {
				return positions, warnings, nil
			}
			fmt.Fprintf(out, "At least %d positions are required.\n", minCount)
			continue
		}

		v, perr := parseToken(text, line)
		if perr != nil {
			warnings = append(warnings, perr)
			fmt.Fprintf(out, "Not a valid position: %v\n", perr.Err)
			continue
		}
		positions = append(positions, v)
	}
}
