package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

// TreeRepository reads and reconciles a whole applet tree across the content tables.
type TreeRepository struct {
	applets    *AppletRepository
	activities *ActivityRepository
	items      *ItemRepository
	flows      *FlowRepository
}

// NewTreeRepository constructs the repository.
func NewTreeRepository(db *sqlx.DB) *TreeRepository {
	return &TreeRepository{
		applets:    NewAppletRepository(db),
		activities: NewActivityRepository(db),
		items:      NewItemRepository(db),
		flows:      NewFlowRepository(db),
	}
}

// WithTx returns a copy bound to tx.
func (r *TreeRepository) WithTx(tx *sqlx.Tx) *TreeRepository {
	return &TreeRepository{
		applets:    r.applets.WithTx(tx),
		activities: r.activities.WithTx(tx),
		items:      r.items.WithTx(tx),
		flows:      r.flows.WithTx(tx),
	}
}

// Lock takes the per-applet row lock serialising edits.
func (r *TreeRepository) Lock(ctx context.Context, appletID string) (*models.Applet, error) {
	return r.applets.Lock(ctx, appletID)
}

// Load assembles the live tree of an applet from ordered queries.
func (r *TreeRepository) Load(ctx context.Context, appletID string) (*models.AppletTree, error) {
	applet, err := r.applets.GetByID(ctx, appletID)
	if err != nil {
		return nil, err
	}
	activities, err := r.activities.ListByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	items, err := r.items.ListByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	flows, err := r.flows.ListByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	flowItems, err := r.flows.ListItemsByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	return AssembleTree(*applet, activities, items, flows, flowItems), nil
}

// Delete soft-deletes the applet and its live descendants.
func (r *TreeRepository) Delete(ctx context.Context, appletID string) error {
	return r.applets.DeleteByID(ctx, appletID)
}

// Purge removes the applet with its live tree, history and accesses.
func (r *TreeRepository) Purge(ctx context.Context, appletID string) error {
	return r.applets.HardDeleteByAppletID(ctx, appletID)
}

// AssembleTree groups flat ordered rows under their parents.
func AssembleTree(applet models.Applet, activities []models.Activity, items []models.ActivityItem, flows []models.Flow, flowItems []models.FlowItem) *models.AppletTree {
	tree := &models.AppletTree{Applet: applet, Activities: make([]models.ActivityNode, 0, len(activities)), Flows: make([]models.FlowNode, 0, len(flows))}

	itemsByActivity := make(map[string][]models.ActivityItem)
	for _, item := range items {
		itemsByActivity[item.ActivityID] = append(itemsByActivity[item.ActivityID], item)
	}
	for _, activity := range activities {
		children := itemsByActivity[activity.ID]
		if children == nil {
			children = []models.ActivityItem{}
		}
		tree.Activities = append(tree.Activities, models.ActivityNode{Activity: activity, Items: children})
	}

	stepsByFlow := make(map[string][]models.FlowItem)
	for _, step := range flowItems {
		stepsByFlow[step.ActivityFlowID] = append(stepsByFlow[step.ActivityFlowID], step)
	}
	for _, flow := range flows {
		steps := stepsByFlow[flow.ID]
		if steps == nil {
			steps = []models.FlowItem{}
		}
		tree.Flows = append(tree.Flows, models.FlowNode{Flow: flow, Items: steps})
	}
	return tree
}

// Save makes the live tables match next. prev is the tree next was planned against and is nil on create.
// Entities present in next but not in prev are created with their ids; entities only in prev are soft-deleted.
func (r *TreeRepository) Save(ctx context.Context, next, prev *models.AppletTree) error {
	if prev == nil {
		if err := r.applets.Create(ctx, &next.Applet); err != nil {
			return err
		}
		prev = &models.AppletTree{}
	} else if err := r.applets.Update(ctx, next.ID, appletPatch(next.Applet)); err != nil {
		return err
	}

	for i := range next.Activities {
		node := &next.Activities[i]
		node.AppletID = next.ID
		order := node.Order
		if old := prev.ActivityByID(node.ID); old != nil {
			if err := r.activities.Update(ctx, node.ID, activityPatch(node.Activity, old.Activity)); err != nil {
				return err
			}
			if err := r.saveItems(ctx, node, old); err != nil {
				return err
			}
			continue
		}
		if err := r.activities.Create(ctx, &node.Activity, &order); err != nil {
			return err
		}
		if err := r.saveItems(ctx, node, nil); err != nil {
			return err
		}
	}

	for _, old := range prev.Flows {
		current := next.FlowByID(old.ID)
		if current == nil {
			if err := r.flows.DeleteByID(ctx, old.ID); err != nil {
				return err
			}
			continue
		}
		for _, step := range old.Items {
			if findFlowItem(current.Items, step.ID) == nil {
				if err := r.flows.DeleteItemByID(ctx, step.ID); err != nil {
					return err
				}
			}
		}
	}

	for i := range next.Flows {
		node := &next.Flows[i]
		node.AppletID = next.ID
		order := node.Order
		old := prev.FlowByID(node.ID)
		if old != nil {
			if err := r.flows.Update(ctx, node.ID, flowPatch(node.Flow)); err != nil {
				return err
			}
		} else if err := r.flows.Create(ctx, &node.Flow, &order); err != nil {
			return err
		}
		for j := range node.Items {
			step := &node.Items[j]
			step.ActivityFlowID = node.ID
			stepOrder := step.Order
			if old != nil && findFlowItem(old.Items, step.ID) != nil {
				if err := r.flows.UpdateItemOrder(ctx, step.ID, stepOrder); err != nil {
					return err
				}
				continue
			}
			if err := r.flows.CreateItem(ctx, step, &stepOrder); err != nil {
				return err
			}
		}
	}

	for _, old := range prev.Activities {
		if next.ActivityByID(old.ID) == nil {
			if err := r.activities.DeleteByID(ctx, old.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *TreeRepository) saveItems(ctx context.Context, node, old *models.ActivityNode) error {
	var previous []models.ActivityItem
	if old != nil {
		previous = old.Items
	}
	for _, item := range previous {
		if findItem(node.Items, item.ID) == nil {
			if err := r.items.DeleteByID(ctx, item.ID); err != nil {
				return err
			}
		}
	}
	for i := range node.Items {
		item := &node.Items[i]
		item.ActivityID = node.ID
		order := item.Order
		if prior := findItem(previous, item.ID); prior != nil {
			if err := r.items.Update(ctx, item.ID, itemPatch(*item, *prior)); err != nil {
				return err
			}
			continue
		}
		if err := r.items.Create(ctx, item, &order); err != nil {
			return err
		}
	}
	return nil
}

func findItem(items []models.ActivityItem, id string) *models.ActivityItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func findFlowItem(items []models.FlowItem, id string) *models.FlowItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func appletPatch(a models.Applet) models.AppletPatch {
	description, about := a.Description, a.About
	if description == nil {
		description = models.LangText{}
	}
	if about == nil {
		about = models.LangText{}
	}
	return models.AppletPatch{
		DisplayName:     &a.DisplayName,
		Description:     description,
		About:           about,
		Image:           &a.Image,
		Watermark:       &a.Watermark,
		Encryption:      a.Encryption,
		RetentionPeriod: a.RetentionPeriod,
		RetentionType:   a.RetentionType,
		Version:         &a.Version,
		PinnedAt:        a.PinnedAt,
	}
}

func activityPatch(a, old models.Activity) models.ActivityPatch {
	description := a.Description
	if description == nil {
		description = models.LangText{}
	}
	order := a.Order
	return models.ActivityPatch{
		Name:               &a.Name,
		Description:        description,
		SplashScreen:       &a.SplashScreen,
		Image:              &a.Image,
		ShowAllAtOnce:      &a.ShowAllAtOnce,
		IsSkippable:        &a.IsSkippable,
		IsReviewable:       &a.IsReviewable,
		ResponseIsEditable: &a.ResponseIsEditable,
		IsHidden:           &a.IsHidden,
		ScoresAndReports:   a.ScoresAndReports,
		SubscaleSetting:    a.SubscaleSetting,
		ClearScores:        a.ScoresAndReports == nil && old.ScoresAndReports != nil,
		ClearSubscales:     a.SubscaleSetting == nil && old.SubscaleSetting != nil,
		Order:              &order,
	}
}

func itemPatch(item, old models.ActivityItem) models.ActivityItemPatch {
	question := item.Question
	if question == nil {
		question = models.LangText{}
	}
	order := item.Order
	return models.ActivityItemPatch{
		Name:             &item.Name,
		Question:         question,
		ResponseType:     &item.ResponseType,
		ResponseValues:   item.ResponseValues,
		Config:           item.Config,
		ConditionalLogic: item.ConditionalLogic,
		ClearConditional: item.ConditionalLogic == nil && old.ConditionalLogic != nil,
		IsHidden:         &item.IsHidden,
		AllowEdit:        &item.AllowEdit,
		Order:            &order,
	}
}

func flowPatch(f models.Flow) models.FlowPatch {
	description := f.Description
	if description == nil {
		description = models.LangText{}
	}
	order := f.Order
	return models.FlowPatch{
		Name:           &f.Name,
		Description:    description,
		IsSingleReport: &f.IsSingleReport,
		HideBadge:      &f.HideBadge,
		IsHidden:       &f.IsHidden,
		Order:          &order,
	}
}
