package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

// AppletValidator checks applet payloads before they are planned and persisted.
type AppletValidator struct {
	validate *validator.Validate
}

// NewValidator returns a validator reporting json field names in error paths.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(JSONFieldName)
	return validate
}

// NewAppletValidator wraps validate, which should report json field names (see JSONFieldName).
func NewAppletValidator(validate *validator.Validate) *AppletValidator {
	if validate == nil {
		validate = NewValidator()
	}
	return &AppletValidator{validate: validate}
}

// Validate reports every structural problem of payload at once. On success the item
// response values and config are rewritten in canonical form.
func (v *AppletValidator) Validate(payload *dto.AppletPayload) error {
	c := &detailCollector{}

	if err := v.validate.Struct(payload); err != nil {
		c.addValidator(err, nil)
	}

	activityNames := make(map[string]int)
	activityKeys := make(map[string]int)
	reviewable := 0
	for i := range payload.Activities {
		activity := &payload.Activities[i]
		path := []string{"activities", strconv.Itoa(i)}
		if prior, dup := activityNames[activity.Name]; dup && activity.Name != "" {
			c.add(fmt.Sprintf("activity name %q is already used by activities[%d]", activity.Name, prior), append(path, "name")...)
		} else {
			activityNames[activity.Name] = i
		}
		if prior, dup := activityKeys[activity.Key]; dup && activity.Key != "" {
			c.add(fmt.Sprintf("activity key is already used by activities[%d]", prior), append(path, "key")...)
		} else {
			activityKeys[activity.Key] = i
		}
		if activity.IsReviewable {
			reviewable++
			if reviewable > 1 {
				c.add("only one activity may be reviewable", append(path, "isReviewable")...)
			}
		}
		v.validateActivity(c, activity, path)
	}

	flowNames := make(map[string]int)
	for i, flow := range payload.Flows {
		path := []string{"activityFlows", strconv.Itoa(i)}
		if prior, dup := flowNames[flow.Name]; dup && flow.Name != "" {
			c.add(fmt.Sprintf("flow name %q is already used by activityFlows[%d]", flow.Name, prior), append(path, "name")...)
		} else {
			flowNames[flow.Name] = i
		}
		for j, step := range flow.Items {
			if _, ok := activityKeys[step.ActivityKey]; !ok && step.ActivityKey != "" {
				c.add("flow item references an activity that is not part of the applet", append(path, "items", strconv.Itoa(j), "activityKey")...)
			}
		}
	}

	return c.err()
}

func (v *AppletValidator) validateActivity(c *detailCollector, activity *dto.ActivityPayload, path []string) {
	items := make(map[string]models.ResponseType, len(activity.Items))
	decoded := make(map[string]models.ResponseValues, len(activity.Items))

	for j := range activity.Items {
		item := &activity.Items[j]
		itemPath := append(clonePath(path), "items", strconv.Itoa(j))
		if _, dup := items[item.Name]; dup && item.Name != "" {
			c.add(fmt.Sprintf("item name %q is already used in this activity", item.Name), append(itemPath, "name")...)
			continue
		}
		items[item.Name] = item.ResponseType
		if !item.ResponseType.Valid() {
			c.add(fmt.Sprintf("unknown response type %q", item.ResponseType), append(itemPath, "responseType")...)
			continue
		}

		values, err := models.DecodeResponseValues(item.ResponseType, item.ResponseValues)
		if err != nil {
			c.add(err.Error(), append(itemPath, "responseValues")...)
		} else if err := v.validate.Struct(values); err != nil && !isInvalidValidation(err) {
			c.addValidator(err, append(itemPath, "responseValues"))
		} else {
			decoded[item.Name] = values
			if canonical, err := models.Canonical(values); err == nil {
				item.ResponseValues = []byte(canonical)
			}
		}

		cfg, err := models.DecodeConfig(item.ResponseType, item.Config)
		if err != nil {
			c.add(err.Error(), append(itemPath, "config")...)
		} else if err := v.validate.Struct(cfg); err != nil && !isInvalidValidation(err) {
			c.addValidator(err, append(itemPath, "config"))
		} else if canonical, err := models.Canonical(cfg); err == nil {
			item.Config = []byte(canonical)
		}
	}

	for j, item := range activity.Items {
		if item.ConditionalLogic == nil {
			continue
		}
		logicPath := append(clonePath(path), "items", strconv.Itoa(j), "conditionalLogic")
		for k, cond := range item.ConditionalLogic.Conditions {
			condPath := append(clonePath(logicPath), "conditions", strconv.Itoa(k))
			if cond.ItemName == item.Name {
				c.add("an item cannot reference itself", append(condPath, "itemName")...)
				continue
			}
			target, ok := items[cond.ItemName]
			if !ok {
				c.add(fmt.Sprintf("condition references unknown item %q", cond.ItemName), append(condPath, "itemName")...)
				continue
			}
			checkCondition(c, cond.Type, cond.Payload, target, decoded[cond.ItemName], condPath)
		}
	}

	if activity.ScoresAndReports != nil {
		validateScores(c, activity.ScoresAndReports, items, decoded, append(clonePath(path), "scoresAndReports"))
	}
	if activity.SubscaleSetting != nil {
		validateSubscales(c, activity.SubscaleSetting, items, append(clonePath(path), "subscaleSetting"))
	}
}

// checkCondition verifies the operator is legal for the referenced item and carries its operands.
func checkCondition(c *detailCollector, op models.ConditionType, payload models.ConditionPayload, target models.ResponseType, values models.ResponseValues, path []string) {
	if !target.AllowsOperator(op) {
		c.add(fmt.Sprintf("operator %s cannot be applied to a %s item", op, target), append(path, "type")...)
		return
	}
	switch {
	case op.IsOption():
		if payload.OptionValue == nil {
			c.add("optionValue is required", append(path, "payload", "optionValue")...)
			return
		}
		if sel, ok := values.(*models.SelectValues); ok && !sel.HasOption(*payload.OptionValue) {
			c.add(fmt.Sprintf("option %q does not exist", *payload.OptionValue), append(path, "payload", "optionValue")...)
		}
	case op.IsRange():
		if payload.MinValue == nil || payload.MaxValue == nil {
			c.add("minValue and maxValue are required", append(path, "payload")...)
			return
		}
		if *payload.MinValue > *payload.MaxValue {
			c.add("minValue must not exceed maxValue", append(path, "payload", "minValue")...)
		}
	default:
		if payload.Value == nil {
			c.add("value is required", append(path, "payload", "value")...)
		}
	}
}

func validateScores(c *detailCollector, scores *models.ScoresAndReports, items map[string]models.ResponseType, decoded map[string]models.ResponseValues, path []string) {
	ids := make(map[string]struct{})
	names := make(map[string]struct{})
	for i, report := range scores.Reports {
		reportPath := append(clonePath(path), "reports", strconv.Itoa(i))
		if _, dup := names[report.Name]; dup {
			c.add(fmt.Sprintf("report name %q is not unique", report.Name), append(reportPath, "name")...)
		}
		names[report.Name] = struct{}{}
		if report.Type == models.ReportScore {
			if _, dup := ids[report.ID]; dup {
				c.add(fmt.Sprintf("score id %q is not unique", report.ID), append(reportPath, "id")...)
			}
			ids[report.ID] = struct{}{}
		}
		for j, name := range report.ItemsScore {
			if _, ok := items[name]; !ok {
				c.add(fmt.Sprintf("score references unknown item %q", name), append(reportPath, "itemsScore", strconv.Itoa(j))...)
			}
		}
		for j, name := range report.ItemsPrint {
			if _, ok := items[name]; !ok {
				c.add(fmt.Sprintf("report prints unknown item %q", name), append(reportPath, "itemsPrint", strconv.Itoa(j))...)
			}
		}
	}

	scoreIDs := scores.ScoreIDs()
	for i, report := range scores.Reports {
		reportPath := append(clonePath(path), "reports", strconv.Itoa(i))
		for j, logic := range report.ConditionalLogic {
			for k, cond := range logic.Conditions {
				condPath := append(clonePath(reportPath), "conditionalLogic", strconv.Itoa(j), "conditions", strconv.Itoa(k), "itemName")
				if _, ok := scoreIDs[cond.ItemName]; ok {
					continue
				}
				if _, ok := items[cond.ItemName]; !ok {
					c.add(fmt.Sprintf("score condition references %q which is neither an item nor a score", cond.ItemName), condPath...)
				}
			}
		}
		if report.SectionLogic != nil {
			for k, cond := range report.SectionLogic.Conditions {
				condPath := append(clonePath(reportPath), "sectionConditionalLogic", "conditions", strconv.Itoa(k))
				if _, ok := scoreIDs[cond.ItemName]; ok {
					continue
				}
				target, ok := items[cond.ItemName]
				if !ok {
					c.add(fmt.Sprintf("section condition references unknown item %q", cond.ItemName), append(condPath, "itemName")...)
					continue
				}
				checkCondition(c, cond.Type, cond.Payload, target, decoded[cond.ItemName], condPath)
			}
		}
	}
}

func validateSubscales(c *detailCollector, setting *models.SubscaleSetting, items map[string]models.ResponseType, path []string) {
	names := make(map[string]struct{}, len(setting.Subscales))
	for _, sub := range setting.Subscales {
		names[sub.Name] = struct{}{}
	}
	for i, sub := range setting.Subscales {
		for j, member := range sub.Items {
			memberPath := append(clonePath(path), "subscales", strconv.Itoa(i), "items", strconv.Itoa(j), "name")
			switch member.Type {
			case models.SubscaleMemberSubscale:
				if _, ok := names[member.Name]; !ok || member.Name == sub.Name {
					c.add(fmt.Sprintf("subscale references unknown subscale %q", member.Name), memberPath...)
				}
			default:
				if _, ok := items[member.Name]; !ok {
					c.add(fmt.Sprintf("subscale references unknown item %q", member.Name), memberPath...)
				}
			}
		}
	}
}

type detailCollector struct {
	details []appErrors.Detail
}

func (c *detailCollector) add(message string, path ...string) {
	c.details = append(c.details, appErrors.Detail{
		Message: message,
		Type:    appErrors.TypeInvalidValue,
		Path:    append([]string(nil), path...),
	})
}

// addValidator converts validator field errors into details under prefix.
func (c *detailCollector) addValidator(err error, prefix []string) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.add(err.Error(), prefix...)
		return
	}
	for _, fe := range fieldErrs {
		path := append(clonePath(prefix), namespacePath(fe.Namespace())...)
		c.add(fieldMessage(fe), path...)
	}
}

func (c *detailCollector) err() error {
	if len(c.details) == 0 {
		return nil
	}
	return appErrors.Validation(c.details...)
}

// namespacePath turns "AppletPayload.activities[0].name" into [activities 0 name].
func namespacePath(ns string) []string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	var path []string
	for _, part := range parts {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				path = append(path, part)
				break
			}
			if open > 0 {
				path = append(path, part[:open])
			}
			closing := strings.IndexByte(part, ']')
			if closing < open {
				path = append(path, part[open:])
				break
			}
			path = append(path, part[open+1:closing])
			part = part[closing+1:]
		}
	}
	return path
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a uuid", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// JSONFieldName names a struct field by its json tag.
func JSONFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func isInvalidValidation(err error) bool {
	var invalid *validator.InvalidValidationError
	return errors.As(err, &invalid)
}

func clonePath(path []string) []string {
	return append([]string(nil), path...)
}
