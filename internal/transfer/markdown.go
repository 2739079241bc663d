package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/conorfennell/qbank/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	separator      = "---"
)

// maxLineBytes covers the longest field allowed, at four bytes per character.
const maxLineBytes = 1 << 20

// ErrMarkdownAmbiguous is returned when a record holds a line the markdown
// reader would take for a separator or a new field.
var ErrMarkdownAmbiguous = errors.New("text cannot be written as markdown")

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
)

// parseMarkdown extracts Q:/A: blocks. A block runs until the next Q:, a
// "---" line or the end of input; continuation lines belong to the field
// that was last opened. Blocks without a question are dropped.
func parseMarkdown(r io.Reader) ([]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var records []map[string]any
	var question, answer string
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(currentBlock, "\n"), "\n")
		switch currentState {
		case readingQuestion:
			question = content
		case readingAnswer:
			answer = content
		}
		currentBlock = nil
	}

	finishRecord := func() {
		flushBlock()
		if question != "" {
			records = append(records, map[string]any{
				"question": question,
				"answer":   answer,
			})
		}
		question, answer = "", ""
		currentState = seeking
	}

	fieldContent := func(line, prefix string) string {
		return strings.TrimPrefix(line[len(prefix):], " ")
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == separator:
			finishRecord()
		case strings.HasPrefix(line, questionPrefix):
			if currentState != seeking { // A new question always starts a new record
				finishRecord()
			}
			currentState = readingQuestion
			currentBlock = append(currentBlock, fieldContent(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix) && currentState != seeking:
			flushBlock()
			currentState = readingAnswer
			currentBlock = append(currentBlock, fieldContent(line, answerPrefix))
		case currentState != seeking:
			currentBlock = append(currentBlock, line)
		}
	}

	finishRecord() // Finish the very last record in the input

	if err := scanner.Err(); err != nil {
		return nil, formatError("unreadable markdown: %v", err)
	}
	if records == nil {
		records = []map[string]any{}
	}
	return records, nil
}

func writeMarkdown(w io.Writer, qs []domain.Question) error {
	for _, q := range qs {
		for _, text := range []string{q.Question, q.Answer} {
			if line, ok := ambiguousLine(text); ok {
				return fmt.Errorf("%w: question %s has the line %q", ErrMarkdownAmbiguous, q.ID, line)
			}
		}
	}

	bw := bufio.NewWriter(w)
	for i, q := range qs {
		if i > 0 {
			fmt.Fprintln(bw, separator)
		}
		fmt.Fprintf(bw, "%s %s\n", questionPrefix, q.Question)
		fmt.Fprintf(bw, "%s %s\n", answerPrefix, q.Answer)
	}
	return bw.Flush()
}

// ambiguousLine reports the first continuation line of text that would end
// the field it belongs to when read back.
func ambiguousLine(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for _, line := range lines[1:] {
		if line == separator || strings.HasPrefix(line, questionPrefix) || strings.HasPrefix(line, answerPrefix) {
			return line, true
		}
	}
	return "", false
}
