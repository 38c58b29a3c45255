package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/pkg/versionkey"
)

// VersionPlan is the outcome of comparing an edit against the stored applet.
type VersionPlan struct {
	Bump      versionkey.Bump
	Previous  string
	Version   string
	ChangeLog []string
}

// VersionPlanner decides the version bump of an edit and describes it.
type VersionPlanner struct{}

// NewVersionPlanner constructs the planner.
func NewVersionPlanner() *VersionPlanner {
	return &VersionPlanner{}
}

type changeSet struct {
	bump versionkey.Bump
	log  []string
}

// note records a change; entries about rows imported from the previous system are not logged.
func (c *changeSet) note(bump versionkey.Bump, migrated bool, format string, args ...interface{}) {
	c.bump = c.bump.Max(bump)
	if !migrated {
		c.log = append(c.log, fmt.Sprintf(format, args...))
	}
}

// Plan compares next against prev. A nil prev plans a create at 1.0.0. Entities are matched by id.
func (p *VersionPlanner) Plan(prev, next *models.AppletTree) (VersionPlan, error) {
	if prev == nil {
		plan := VersionPlan{Bump: versionkey.BumpMajor, Version: versionkey.Initial}
		plan.ChangeLog = append(plan.ChangeLog, fmt.Sprintf("New applet %s added", next.DisplayName))
		for _, activity := range next.Activities {
			plan.ChangeLog = append(plan.ChangeLog, fmt.Sprintf("New activity %s added", activity.Name))
		}
		for _, flow := range next.Flows {
			plan.ChangeLog = append(plan.ChangeLog, fmt.Sprintf("New activity flow %s added", flow.Name))
		}
		return plan, nil
	}

	current, err := versionkey.ParseVersion(prev.Version)
	if err != nil {
		return VersionPlan{}, err
	}

	c := &changeSet{bump: versionkey.BumpNone}
	diffApplet(c, &prev.Applet, &next.Applet)
	diffActivities(c, prev, next)
	diffFlows(c, prev, next)

	bump := c.bump
	if bump == versionkey.BumpNone {
		bump = versionkey.BumpPatch
	}
	return VersionPlan{
		Bump:      bump,
		Previous:  prev.Version,
		Version:   current.Next(bump).String(),
		ChangeLog: c.log,
	}, nil
}

func diffApplet(c *changeSet, prev, next *models.Applet) {
	migrated := prev.IsMigrated()
	if prev.DisplayName != next.DisplayName {
		c.note(versionkey.BumpPatch, migrated, "Applet display name changed from %s to %s", prev.DisplayName, next.DisplayName)
	}
	if !langEqual(prev.Description, next.Description) {
		c.note(versionkey.BumpPatch, migrated, "Applet description changed")
	}
	if !langEqual(prev.About, next.About) {
		c.note(versionkey.BumpPatch, migrated, "Applet about changed")
	}
	if prev.Image != next.Image {
		c.note(versionkey.BumpPatch, migrated, "Applet image changed")
	}
	if prev.Watermark != next.Watermark {
		c.note(versionkey.BumpPatch, migrated, "Applet watermark changed")
	}
	if !intPtrEqual(prev.RetentionPeriod, next.RetentionPeriod) || !reflect.DeepEqual(prev.RetentionType, next.RetentionType) {
		c.note(versionkey.BumpPatch, migrated, "Applet retention policy changed")
	}
	if prev.Encryption == nil && next.Encryption != nil {
		c.note(versionkey.BumpPatch, migrated, "Applet encryption set")
	}
}

func diffActivities(c *changeSet, prev, next *models.AppletTree) {
	for _, old := range prev.Activities {
		if next.ActivityByID(old.ID) == nil {
			c.note(versionkey.BumpMajor, old.IsMigrated(), "Activity %s removed", old.Name)
		}
	}
	for i := range next.Activities {
		activity := &next.Activities[i]
		old := prev.ActivityByID(activity.ID)
		if old == nil {
			c.note(versionkey.BumpMinor, false, "New activity %s added", activity.Name)
			continue
		}
		diffActivity(c, old, activity)
	}
}

func diffActivity(c *changeSet, old, next *models.ActivityNode) {
	migrated := old.IsMigrated()
	name := next.Name
	if old.Name != next.Name {
		c.note(versionkey.BumpPatch, migrated, "Activity %s renamed to %s", old.Name, next.Name)
	}
	if !langEqual(old.Description, next.Description) {
		c.note(versionkey.BumpPatch, migrated, "Activity %s description changed", name)
	}
	if old.SplashScreen != next.SplashScreen || old.Image != next.Image {
		c.note(versionkey.BumpPatch, migrated, "Activity %s images changed", name)
	}
	if old.ShowAllAtOnce != next.ShowAllAtOnce || old.IsSkippable != next.IsSkippable ||
		old.ResponseIsEditable != next.ResponseIsEditable || old.IsHidden != next.IsHidden {
		c.note(versionkey.BumpPatch, migrated, "Activity %s settings changed", name)
	}
	if old.Order != next.Order {
		c.note(versionkey.BumpPatch, migrated, "Activity %s moved", name)
	}
	if old.IsReviewable != next.IsReviewable {
		c.note(versionkey.BumpMajor, migrated, "Activity %s reviewable setting changed", name)
	}
	if !jsonEqual(old.ScoresAndReports, next.ScoresAndReports) {
		c.note(versionkey.BumpMajor, migrated, "Activity %s scores and reports changed", name)
	}
	if !jsonEqual(old.SubscaleSetting, next.SubscaleSetting) {
		c.note(versionkey.BumpMajor, migrated, "Activity %s subscale setting changed", name)
	}

	for _, item := range old.Items {
		if findItem(next.Items, item.ID) == nil {
			c.note(versionkey.BumpMajor, item.IsMigrated(), "Item %s removed from activity %s", item.Name, name)
		}
	}
	for i := range next.Items {
		item := &next.Items[i]
		prior := findItem(old.Items, item.ID)
		if prior == nil {
			c.note(versionkey.BumpMinor, false, "New item %s added to activity %s", item.Name, name)
			continue
		}
		diffItem(c, prior, item)
	}
}

func diffItem(c *changeSet, old, next *models.ActivityItem) {
	migrated := old.IsMigrated()
	name := next.Name
	if old.Name != next.Name {
		c.note(versionkey.BumpMajor, migrated, "Item %s renamed to %s", old.Name, next.Name)
	}
	if old.ResponseType != next.ResponseType {
		c.note(versionkey.BumpMajor, migrated, "Item %s response type changed", name)
	} else {
		if !rawEqual(old.ResponseValues, next.ResponseValues) {
			c.note(versionkey.BumpMajor, migrated, "Item %s response values changed", name)
		}
		if !rawEqual(old.Config, next.Config) {
			if sameShape(old.Config, next.Config) {
				c.note(versionkey.BumpMinor, migrated, "Item %s config changed", name)
			} else {
				c.note(versionkey.BumpMajor, migrated, "Item %s config structure changed", name)
			}
		}
	}
	if !jsonEqual(old.ConditionalLogic, next.ConditionalLogic) {
		c.note(versionkey.BumpMajor, migrated, "Item %s conditional logic changed", name)
	}
	if !langEqual(old.Question, next.Question) {
		c.note(versionkey.BumpPatch, migrated, "Item %s question changed", name)
	}
	if old.IsHidden != next.IsHidden || old.AllowEdit != next.AllowEdit {
		c.note(versionkey.BumpPatch, migrated, "Item %s settings changed", name)
	}
	if old.Order != next.Order {
		c.note(versionkey.BumpPatch, migrated, "Item %s moved", name)
	}
}

func diffFlows(c *changeSet, prev, next *models.AppletTree) {
	for _, old := range prev.Flows {
		if next.FlowByID(old.ID) == nil {
			c.note(versionkey.BumpMajor, old.IsMigrated(), "Activity flow %s removed", old.Name)
		}
	}
	for i := range next.Flows {
		flow := &next.Flows[i]
		old := prev.FlowByID(flow.ID)
		if old == nil {
			c.note(versionkey.BumpMinor, false, "New activity flow %s added", flow.Name)
			continue
		}
		migrated := old.IsMigrated()
		if old.Name != flow.Name {
			c.note(versionkey.BumpPatch, migrated, "Activity flow %s renamed to %s", old.Name, flow.Name)
		}
		if !langEqual(old.Description, flow.Description) {
			c.note(versionkey.BumpPatch, migrated, "Activity flow %s description changed", flow.Name)
		}
		if old.IsSingleReport != flow.IsSingleReport || old.HideBadge != flow.HideBadge || old.IsHidden != flow.IsHidden {
			c.note(versionkey.BumpPatch, migrated, "Activity flow %s settings changed", flow.Name)
		}
		if old.Order != flow.Order {
			c.note(versionkey.BumpPatch, migrated, "Activity flow %s moved", flow.Name)
		}
		diffFlowSteps(c, old, flow, migrated)
	}
}

func diffFlowSteps(c *changeSet, old, next *models.FlowNode, migrated bool) {
	removed, added, moved := false, false, false
	for _, step := range old.Items {
		if findFlowStep(next.Items, step.ID) == nil {
			removed = true
		}
	}
	for _, step := range next.Items {
		prior := findFlowStep(old.Items, step.ID)
		switch {
		case prior == nil:
			added = true
		case prior.Order != step.Order:
			moved = true
		}
	}
	if removed {
		c.note(versionkey.BumpMajor, migrated, "Activity flow %s steps removed", next.Name)
	}
	if added {
		c.note(versionkey.BumpMinor, migrated, "Activity flow %s steps added", next.Name)
	}
	if moved {
		c.note(versionkey.BumpPatch, migrated, "Activity flow %s steps reordered", next.Name)
	}
}

func findItem(items []models.ActivityItem, id string) *models.ActivityItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func findFlowStep(steps []models.FlowItem, id string) *models.FlowItem {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
	}
	return nil
}

// langEqual treats a missing text map and an empty one alike.
func langEqual(a, b models.LangText) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// jsonEqual compares values through their JSON encoding; nil pointers equal nil.
func jsonEqual(a, b interface{}) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return rawEqual(ra, rb)
}

// rawEqual compares two JSON documents ignoring formatting and key order.
func rawEqual(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb interface{}
	if err := json.Unmarshal(orNull(a), &va); err != nil {
		return false
	}
	if err := json.Unmarshal(orNull(b), &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// sameShape reports whether two JSON objects carry the same keys.
func sameShape(a, b []byte) bool {
	var ma, mb map[string]interface{}
	if err := json.Unmarshal(orNull(a), &ma); err != nil {
		return false
	}
	if err := json.Unmarshal(orNull(b), &mb); err != nil {
		return false
	}
	return reflect.DeepEqual(shapeOf(ma), shapeOf(mb))
}

func shapeOf(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orNull(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	return raw
}
