package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ResponseType discriminates the response values and config payloads of an item.
type ResponseType string

const (
	ResponseSingleSelect     ResponseType = "singleSelect"
	ResponseMultiSelect      ResponseType = "multiSelect"
	ResponseSlider           ResponseType = "slider"
	ResponseNumberSelect     ResponseType = "numberSelect"
	ResponseText             ResponseType = "text"
	ResponseDate             ResponseType = "date"
	ResponseTimeRange        ResponseType = "timeRange"
	ResponseGeolocation      ResponseType = "geolocation"
	ResponseDrawing          ResponseType = "drawing"
	ResponsePhoto            ResponseType = "photo"
	ResponseVideo            ResponseType = "video"
	ResponseAudio            ResponseType = "audio"
	ResponseAudioPlayer      ResponseType = "audioPlayer"
	ResponseMessage          ResponseType = "message"
	ResponseSingleSelectRows ResponseType = "singleSelectRows"
	ResponseMultiSelectRows  ResponseType = "multiSelectRows"
	ResponseSliderRows       ResponseType = "sliderRows"
	ResponseAudioStimulus    ResponseType = "audioStimulus"
	ResponseAgeSelector      ResponseType = "ageSelector"
	ResponseFlanker          ResponseType = "flanker"
)

// ResponseValues is the sealed set of per-type value payloads.
type ResponseValues interface {
	Kind() ResponseType
	isResponseValues()
}

// Option is one choice of a select item.
type Option struct {
	ID       string   `json:"id" validate:"required"`
	Text     string   `json:"text" validate:"required"`
	Image    string   `json:"image,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	Tooltip  string   `json:"tooltip,omitempty"`
	Color    string   `json:"color,omitempty"`
	IsHidden bool     `json:"isHidden,omitempty"`
	Value    int      `json:"value"`
}

// SelectValues backs singleSelect and multiSelect.
type SelectValues struct {
	kind        ResponseType
	PaletteName string   `json:"paletteName,omitempty"`
	Options     []Option `json:"options" validate:"required,min=1,dive"`
}

func (v *SelectValues) Kind() ResponseType { return v.kind }
func (*SelectValues) isResponseValues()    {}

// HasOption reports whether ref names one of the options by id or by value.
func (v *SelectValues) HasOption(ref string) bool {
	for _, opt := range v.Options {
		if opt.ID == ref || strconv.Itoa(opt.Value) == ref {
			return true
		}
	}
	return false
}

// SliderValues backs slider.
type SliderValues struct {
	MinLabel string    `json:"minLabel,omitempty"`
	MaxLabel string    `json:"maxLabel,omitempty"`
	MinValue int       `json:"minValue"`
	MaxValue int       `json:"maxValue" validate:"gtfield=MinValue"`
	MinImage string    `json:"minImage,omitempty"`
	MaxImage string    `json:"maxImage,omitempty"`
	Scores   []float64 `json:"scores,omitempty"`
	Alerts   []Alert   `json:"alerts,omitempty" validate:"dive"`
}

func (*SliderValues) Kind() ResponseType { return ResponseSlider }
func (*SliderValues) isResponseValues()  {}

// Alert attaches a message to a response value; delivery is handled outside the core.
type Alert struct {
	Value   string `json:"value"`
	Message string `json:"message" validate:"required"`
}

// NumberSelectValues backs numberSelect.
type NumberSelectValues struct {
	MinValue int `json:"minValue"`
	MaxValue int `json:"maxValue" validate:"gtfield=MinValue"`
}

func (*NumberSelectValues) Kind() ResponseType { return ResponseNumberSelect }
func (*NumberSelectValues) isResponseValues()  {}

// AgeSelectorValues backs ageSelector.
type AgeSelectorValues struct {
	MinAge int `json:"minAge" validate:"gte=0"`
	MaxAge int `json:"maxAge" validate:"gtfield=MinAge"`
}

func (*AgeSelectorValues) Kind() ResponseType { return ResponseAgeSelector }
func (*AgeSelectorValues) isResponseValues()  {}

// Row is one row of a matrix item.
type Row struct {
	ID       string `json:"id" validate:"required"`
	RowName  string `json:"rowName" validate:"required"`
	RowImage string `json:"rowImage,omitempty"`
	Tooltip  string `json:"tooltip,omitempty"`
}

// RowOption is one column of a matrix item.
type RowOption struct {
	ID      string `json:"id" validate:"required"`
	Text    string `json:"text" validate:"required"`
	Image   string `json:"image,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
}

// SelectRowsValues backs singleSelectRows and multiSelectRows.
type SelectRowsValues struct {
	kind    ResponseType
	Rows    []Row       `json:"rows" validate:"required,min=1,dive"`
	Options []RowOption `json:"options" validate:"required,min=1,dive"`
}

func (v *SelectRowsValues) Kind() ResponseType { return v.kind }
func (*SelectRowsValues) isResponseValues()    {}

// SliderRow is one slider of a sliderRows item.
type SliderRow struct {
	ID       string `json:"id" validate:"required"`
	Label    string `json:"label" validate:"required"`
	MinLabel string `json:"minLabel,omitempty"`
	MaxLabel string `json:"maxLabel,omitempty"`
	MinValue int    `json:"minValue"`
	MaxValue int    `json:"maxValue" validate:"gtfield=MinValue"`
}

// SliderRowsValues backs sliderRows.
type SliderRowsValues struct {
	Rows []SliderRow `json:"rows" validate:"required,min=1,dive"`
}

func (*SliderRowsValues) Kind() ResponseType { return ResponseSliderRows }
func (*SliderRowsValues) isResponseValues()  {}

// AudioValues backs audio.
type AudioValues struct {
	MaxDuration int `json:"maxDuration" validate:"gt=0"`
}

func (*AudioValues) Kind() ResponseType { return ResponseAudio }
func (*AudioValues) isResponseValues()  {}

// MediaValues backs audioPlayer and audioStimulus.
type MediaValues struct {
	kind ResponseType
	File string `json:"file" validate:"required"`
}

func (v *MediaValues) Kind() ResponseType { return v.kind }
func (*MediaValues) isResponseValues()    {}

// DrawingValues backs drawing.
type DrawingValues struct {
	DrawingExample    string `json:"drawingExample,omitempty"`
	DrawingBackground string `json:"drawingBackground,omitempty"`
}

func (*DrawingValues) Kind() ResponseType { return ResponseDrawing }
func (*DrawingValues) isResponseValues()  {}

// NoValues backs types that carry no response values.
type NoValues struct {
	kind ResponseType
}

func (v *NoValues) Kind() ResponseType { return v.kind }
func (*NoValues) isResponseValues()    {}

// BaseConfig is shared by every item config.
type BaseConfig struct {
	RemoveBackButton bool `json:"removeBackButton"`
	SkippableItem    bool `json:"skippableItem"`
	Timer            *int `json:"timer,omitempty" validate:"omitempty,gte=0"`
}

// AdditionalResponseOption adds a free-text box next to the main response.
type AdditionalResponseOption struct {
	TextInputOption   bool `json:"textInputOption"`
	TextInputRequired bool `json:"textInputRequired"`
}

// SelectConfig configures select and matrix items.
type SelectConfig struct {
	BaseConfig
	RandomizeOptions         bool                      `json:"randomizeOptions"`
	AddScores                bool                      `json:"addScores"`
	SetAlerts                bool                      `json:"setAlerts"`
	AddTooltip               bool                      `json:"addTooltip"`
	SetPalette               bool                      `json:"setPalette"`
	AdditionalResponseOption *AdditionalResponseOption `json:"additionalResponseOption,omitempty"`
}

// SliderConfig configures slider and sliderRows.
type SliderConfig struct {
	BaseConfig
	AddScores                bool                      `json:"addScores"`
	SetAlerts                bool                      `json:"setAlerts"`
	ShowTickMarks            bool                      `json:"showTickMarks"`
	ShowTickLabels           bool                      `json:"showTickLabels"`
	ContinuousSlider         bool                      `json:"continuousSlider"`
	AdditionalResponseOption *AdditionalResponseOption `json:"additionalResponseOption,omitempty"`
}

// TextConfig configures text.
type TextConfig struct {
	BaseConfig
	MaxResponseLength         int    `json:"maxResponseLength" validate:"gte=0"`
	CorrectAnswerRequired     bool   `json:"correctAnswerRequired"`
	CorrectAnswer             string `json:"correctAnswer,omitempty" validate:"required_if=CorrectAnswerRequired true"`
	NumericalResponseRequired bool   `json:"numericalResponseRequired"`
	ResponseDataIdentifier    bool   `json:"responseDataIdentifier"`
	ResponseRequired          bool   `json:"responseRequired"`
}

// GenericConfig configures the remaining input types.
type GenericConfig struct {
	BaseConfig
	AdditionalResponseOption *AdditionalResponseOption `json:"additionalResponseOption,omitempty"`
}

// MessageConfig configures message and audioStimulus.
type MessageConfig struct {
	RemoveBackButton bool `json:"removeBackButton"`
	Timer            *int `json:"timer,omitempty" validate:"omitempty,gte=0"`
}

// FlankerButton is one answer button of a flanker task.
type FlankerButton struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
	Value int    `json:"value"`
}

// FlankerStimulus is one stimulus screen of a flanker task.
type FlankerStimulus struct {
	ID    string `json:"id" validate:"required"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
	Value int    `json:"value"`
}

// FlankerBlock orders stimuli into one block.
type FlankerBlock struct {
	Name  string   `json:"name" validate:"required"`
	Order []string `json:"order" validate:"required,min=1"`
}

// FlankerConfig configures flanker.
type FlankerConfig struct {
	StimulusTrials  []FlankerStimulus `json:"stimulusTrials" validate:"required,min=1,dive"`
	Blocks          []FlankerBlock    `json:"blocks" validate:"required,min=1,dive"`
	Buttons         []FlankerButton   `json:"buttons" validate:"required,min=1,max=2"`
	FixationScreen  string            `json:"fixationScreen,omitempty"`
	ShowFixation    bool              `json:"showFixation"`
	ShowFeedback    bool              `json:"showFeedback"`
	SampleSize      int               `json:"sampleSize" validate:"gte=1"`
	TrialDuration   int               `json:"trialDuration" validate:"gte=1"`
	MinimumAccuracy *int              `json:"minimumAccuracy,omitempty" validate:"omitempty,gte=0,lte=100"`
	BlockType       string            `json:"blockType" validate:"oneof=practice test"`
	IsFirstPractice bool              `json:"isFirstPractice"`
	IsLastPractice  bool              `json:"isLastPractice"`
	IsLastTest      bool              `json:"isLastTest"`
}

type responseSpec struct {
	values    func(ResponseType) ResponseValues
	config    func() interface{}
	operators []ConditionType
}

var numericOperators = []ConditionType{ConditionEqual, ConditionNotEqual, ConditionLessThan, ConditionGreaterThan, ConditionBetween, ConditionOutsideOf}

var responseSpecs = map[ResponseType]responseSpec{
	ResponseSingleSelect: {
		values:    func(t ResponseType) ResponseValues { return &SelectValues{kind: t} },
		config:    func() interface{} { return &SelectConfig{} },
		operators: []ConditionType{ConditionEqualToOption, ConditionNotEqualToOption},
	},
	ResponseMultiSelect: {
		values:    func(t ResponseType) ResponseValues { return &SelectValues{kind: t} },
		config:    func() interface{} { return &SelectConfig{} },
		operators: []ConditionType{ConditionIncludesOption, ConditionNotIncludesOption},
	},
	ResponseSlider: {
		values:    func(ResponseType) ResponseValues { return &SliderValues{} },
		config:    func() interface{} { return &SliderConfig{} },
		operators: numericOperators,
	},
	ResponseNumberSelect: {
		values:    func(ResponseType) ResponseValues { return &NumberSelectValues{} },
		config:    func() interface{} { return &GenericConfig{} },
		operators: numericOperators,
	},
	ResponseAgeSelector: {
		values:    func(ResponseType) ResponseValues { return &AgeSelectorValues{} },
		config:    func() interface{} { return &GenericConfig{} },
		operators: numericOperators,
	},
	ResponseText:        {config: func() interface{} { return &TextConfig{} }},
	ResponseDate:        {config: func() interface{} { return &GenericConfig{} }},
	ResponseTimeRange:   {config: func() interface{} { return &GenericConfig{} }},
	ResponseGeolocation: {config: func() interface{} { return &GenericConfig{} }},
	ResponsePhoto:       {config: func() interface{} { return &GenericConfig{} }},
	ResponseVideo:       {config: func() interface{} { return &GenericConfig{} }},
	ResponseMessage:     {config: func() interface{} { return &MessageConfig{} }},
	ResponseDrawing: {
		values: func(ResponseType) ResponseValues { return &DrawingValues{} },
		config: func() interface{} { return &GenericConfig{} },
	},
	ResponseAudio: {
		values: func(ResponseType) ResponseValues { return &AudioValues{} },
		config: func() interface{} { return &GenericConfig{} },
	},
	ResponseAudioPlayer: {
		values: func(t ResponseType) ResponseValues { return &MediaValues{kind: t} },
		config: func() interface{} { return &GenericConfig{} },
	},
	ResponseAudioStimulus: {
		values: func(t ResponseType) ResponseValues { return &MediaValues{kind: t} },
		config: func() interface{} { return &MessageConfig{} },
	},
	ResponseSingleSelectRows: {
		values: func(t ResponseType) ResponseValues { return &SelectRowsValues{kind: t} },
		config: func() interface{} { return &SelectConfig{} },
	},
	ResponseMultiSelectRows: {
		values: func(t ResponseType) ResponseValues { return &SelectRowsValues{kind: t} },
		config: func() interface{} { return &SelectConfig{} },
	},
	ResponseSliderRows: {
		values: func(ResponseType) ResponseValues { return &SliderRowsValues{} },
		config: func() interface{} { return &SliderConfig{} },
	},
	ResponseFlanker: {config: func() interface{} { return &FlankerConfig{} }},
}

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	_, ok := responseSpecs[t]
	return ok
}

// Operators lists the condition types that may reference an item of this type.
func (t ResponseType) Operators() []ConditionType {
	return responseSpecs[t].operators
}

// AllowsOperator reports whether op may be used against an item of this type.
func (t ResponseType) AllowsOperator(op ConditionType) bool {
	for _, allowed := range responseSpecs[t].operators {
		if allowed == op {
			return true
		}
	}
	return false
}

// DecodeResponseValues strictly decodes raw into the variant for t.
func DecodeResponseValues(t ResponseType, raw []byte) (ResponseValues, error) {
	spec, ok := responseSpecs[t]
	if !ok {
		return nil, fmt.Errorf("unknown response type %q", t)
	}
	if spec.values == nil {
		if !isEmptyJSON(raw) {
			return nil, fmt.Errorf("response type %q does not accept response values", t)
		}
		return &NoValues{kind: t}, nil
	}
	values := spec.values(t)
	if isEmptyJSON(raw) {
		return nil, fmt.Errorf("response values are required for %q", t)
	}
	if err := strictDecode(raw, values); err != nil {
		return nil, err
	}
	return values, nil
}

// DecodeConfig strictly decodes raw into the config struct for t. Empty input yields defaults.
func DecodeConfig(t ResponseType, raw []byte) (interface{}, error) {
	spec, ok := responseSpecs[t]
	if !ok {
		return nil, fmt.Errorf("unknown response type %q", t)
	}
	cfg := spec.config()
	if isEmptyJSON(raw) {
		return cfg, nil
	}
	if err := strictDecode(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Canonical re-encodes a decoded variant so equal payloads compare byte-equal.
func Canonical(v interface{}) (JSONB, error) {
	if _, ok := v.(*NoValues); ok {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(raw), nil
}

func strictDecode(raw []byte, dest interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func isEmptyJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
