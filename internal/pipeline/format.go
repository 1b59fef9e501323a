package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/saitejavellanki/mathres/internal/extract"
)

const processingMethod = "restructure_crew"

var dataSources = []string{"ocr", "vlmdesc", "mcq", "rubrics"}

// QAPair is one restructured question with its answer and awarded marks.
type QAPair struct {
	Question          string `json:"question"`
	Answer            string `json:"answer"`
	DiagramOrEquation string `json:"diagram_or_equation"`
	MarksAwarded      *int   `json:"marks_awarded,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	RunID               string   `json:"run_id"`
	ProcessedAt         string   `json:"processed_at"`
	ProcessingMethod    string   `json:"processing_method"`
	DataSources         []string `json:"data_sources"`
	RestructureStrategy string   `json:"restructure_strategy"`
	MarkingStrategy     string   `json:"marking_strategy"`
	TotalMarks          int      `json:"total_marks"`
}

// Formatted is the document returned to callers and persisted.
type Formatted struct {
	TotalPairs       int      `json:"total_pairs"`
	QAPairs          []QAPair `json:"qa_pairs"`
	FormattedDisplay string   `json:"formatted_display"`
	Metadata         Metadata `json:"metadata"`

	DatabaseOperation string `json:"database_operation,omitempty"`
	DatabaseResult    any    `json:"database_result,omitempty"`
}

// buildFormatted joins QA records with marking records. A marking record is
// matched by exact question text first and by position second.
func buildFormatted(runID string, qa, marking *AgentResult, now time.Time) *Formatted {
	byQuestion := make(map[string]int, len(marking.Records))
	var byIndex []int
	for _, r := range marking.Records {
		m, ok := r.(extract.MarkingRecord)
		if !ok {
			continue
		}
		byIndex = append(byIndex, m.MarksAwarded)
		if _, seen := byQuestion[m.Question]; !seen {
			byQuestion[m.Question] = m.MarksAwarded
		}
	}

	pairs := make([]QAPair, 0, len(qa.Records))
	total := 0
	for i, r := range qa.Records {
		q, ok := r.(extract.QARecord)
		if !ok {
			continue
		}
		pair := QAPair{Question: q.Question, Answer: q.Answer, DiagramOrEquation: q.DiagramOrEquation}
		if marks, ok := byQuestion[q.Question]; ok {
			pair.MarksAwarded = intPtr(marks)
		} else if i < len(byIndex) {
			pair.MarksAwarded = intPtr(byIndex[i])
		}
		if pair.MarksAwarded != nil {
			total += *pair.MarksAwarded
		}
		pairs = append(pairs, pair)
	}

	return &Formatted{
		TotalPairs:       len(pairs),
		QAPairs:          pairs,
		FormattedDisplay: FormatDisplay(pairs),
		Metadata: Metadata{
			RunID:               runID,
			ProcessedAt:         now.UTC().Format(time.RFC3339),
			ProcessingMethod:    processingMethod,
			DataSources:         dataSources,
			RestructureStrategy: string(qa.Strategy),
			MarkingStrategy:     string(marking.Strategy),
			TotalMarks:          total,
		},
	}
}

// FormatDisplay renders pairs as a human-readable block.
func FormatDisplay(pairs []QAPair) string {
	heavy := strings.Repeat("=", 60)
	light := strings.Repeat("-", 60)

	var lines []string
	for i, p := range pairs {
		lines = append(lines,
			"\n"+heavy,
			"Question "+strconv.Itoa(i+1)+":",
			heavy,
			p.Question,
			"\n"+light,
			"Answer:",
			light,
			p.Answer,
		)
	}
	lines = append(lines, "\n"+heavy)
	return strings.Join(lines, "\n")
}

func intPtr(v int) *int { return &v }
