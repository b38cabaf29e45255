package diagnostics

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	widgetSize      = 1024
	widgetStart     = "-PT3H"
	widgetEnd       = "+PT1H"
	thresholdColor  = "#ff6961"
	transitionColor = "#9467bd"
	annotationTime  = "2006-01-02T15:04:05Z"
)

// Widget is a CloudWatch metric widget definition.
type Widget struct {
	Metrics     [][]any     `json:"metrics"`
	Title       string      `json:"title,omitempty"`
	Height      int         `json:"height"`
	Width       int         `json:"width"`
	Start       string      `json:"start"`
	End         string      `json:"end"`
	LiveData    bool        `json:"liveData"`
	Annotations Annotations `json:"annotations"`
}

// Annotations are the horizontal and vertical markers of a widget.
type Annotations struct {
	Horizontal []Annotation `json:"horizontal"`
	Vertical   []Annotation `json:"vertical"`
}

// Annotation is one widget marker. Value is a number for horizontal and a
// timestamp for vertical markers.
type Annotation struct {
	Color string `json:"color"`
	Label string `json:"label"`
	Value any    `json:"value"`
}

type seriesOptions struct {
	Stat   string `json:"stat"`
	Period int32  `json:"period"`
}

// BuildWidget lays out a 1024x1024 chart from three hours before to one hour
// after now, marking the threshold, each recent datapoint and the evaluated
// interval of the transition.
func BuildWidget(metric, instanceID string, series [][]any, t *Transition) Widget {
	horizontal := make([]Annotation, 0, len(t.RecentDatapoints)+1)
	horizontal = append(horizontal, Annotation{Color: thresholdColor, Label: t.Reason, Value: t.Threshold})
	for _, dp := range t.RecentDatapoints {
		horizontal = append(horizontal, Annotation{
			Color: thresholdColor,
			Label: strconv.FormatFloat(dp, 'f', -1, 64),
			Value: dp,
		})
	}

	return Widget{
		Metrics:  series,
		Title:    ChartTitle(metric, instanceID),
		Height:   widgetSize,
		Width:    widgetSize,
		Start:    widgetStart,
		End:      widgetEnd,
		LiveData: true,
		Annotations: Annotations{
			Horizontal: horizontal,
			Vertical: []Annotation{
				{Color: transitionColor, Label: "start", Value: t.StartDate.Format(annotationTime)},
				{Color: transitionColor, Label: "end", Value: t.QueryDate.Format(annotationTime)},
			},
		},
	}
}

// ChartTitle names a chart, e.g. "Procstat Cpu Usage of i-0abc".
func ChartTitle(metric, instanceID string) string {
	words := strings.NewReplacer("_", " ").Replace(metric)
	return cases.Title(language.English, cases.NoLower).String(words) + " of " + instanceID
}
