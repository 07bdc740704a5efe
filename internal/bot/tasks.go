package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-manager/internal/model"
	"task-manager/internal/service"
)

var (
	errTaskRefNotFound  = errors.New("no task matches that id")
	errTaskRefAmbiguous = errors.New("several tasks match that id")
)

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	userCtx, user, err := b.userContext(ctx, msg.From)
	if err != nil {
		return err
	}

	b.logger.Debug("list tasks", "user_id", user.ID)
	return b.sendTaskList(userCtx, msg.Chat.ID)
}

// sendTaskList shows the caller's open tasks grouped by category, each with
// inline buttons.
func (b *Bot) sendTaskList(userCtx context.Context, chatID int64) error {
	tasks, err := b.deps.Tasks.ListTasks(userCtx)
	if err != nil {
		return b.sendText(chatID, userMessage(err))
	}

	now := b.now()
	type categoryGroup struct {
		Name  string
		Tasks []model.Task
	}

	groups := make(map[string]*categoryGroup)
	order := make([]string, 0, len(tasks))

	for _, task := range tasks {
		if !task.Status.Open() {
			continue
		}
		key, display := groupKey(task)
		group, ok := groups[key]
		if !ok {
			group = &categoryGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.Tasks = append(group.Tasks, task)
	}

	if len(groups) == 0 {
		return b.sendText(chatID, "You have no open tasks. Add one with /newtask.")
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == noCategoryKey {
			return false
		}
		if order[j] == noCategoryKey {
			return true
		}
		return strings.Compare(groups[order[i]].Name, groups[order[j]].Name) < 0
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	builder.WriteString("Use the buttons to complete or delete a task.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		sort.SliceStable(section.Tasks, func(i, j int) bool {
			a := section.Tasks[i]
			b := section.Tasks[j]
			if a.DueDate != nil && b.DueDate != nil {
				if !a.DueDate.Equal(*b.DueDate) {
					return a.DueDate.Before(*b.DueDate)
				}
			} else if a.DueDate != nil {
				return true
			} else if b.DueDate != nil {
				return false
			}
			return a.Priority.Rank() > b.Priority.Rank()
		})

		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			builder.WriteString(formatTask(task, now))
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s · %s", shortID(task.ID), shortTitle(task.Title, 20)), cbCompletePrefix+task.ID),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbDeletePrefix+task.ID),
			))
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func groupKey(task model.Task) (string, string) {
	if task.Category == nil || strings.TrimSpace(task.Category.Name) == "" {
		return noCategoryKey, categoryLabel(noCategory)
	}
	name := strings.TrimSpace(task.Category.Name)
	return strings.ToLower(name), categoryLabel(name)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	defer b.ack(cb)

	data := cb.Data
	b.logger.Debug("callback", "from", cb.From.ID, "data", data)

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbCompletePrefix), actionComplete)
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbDeletePrefix), actionDelete)
	default:
		return nil
	}
}

// askConfirmation remembers the pending action and asks the user to confirm.
func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string, action confirmationAction) error {
	userCtx, _, err := b.userContext(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.deps.Tasks.GetTask(userCtx, taskID)
	if err != nil {
		return b.sendText(chatID, userMessage(err))
	}

	var text string
	if action == actionDelete {
		text = fmt.Sprintf("Delete task “%s” (<code>%s</code>)?", escape(normalizeTitle(task.Title)), shortID(task.ID))
	} else {
		if task.Status == model.StatusCompleted {
			return b.sendText(chatID, "That task is already completed.")
		}
		text = fmt.Sprintf("Mark task “%s” (<code>%s</code>) as completed?", escape(normalizeTitle(task.Title)), shortID(task.ID))
	}
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Confirm or cancel completing the task."
		if req.action == actionDelete {
			prompt = "Confirm or cancel deleting the task."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	userCtx, user, err := b.userContext(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.deps.Tasks.UpdateTaskStatus(userCtx, taskID, string(model.StatusCompleted))
	if err != nil {
		return b.sendTextWithRemove(chatID, userMessage(err))
	}

	b.logger.Info("task completed from chat", "task_id", task.ID, "user_id", user.ID)
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("✅ Task “%s” completed.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(userCtx, chatID)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	userCtx, user, err := b.userContext(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.deps.Tasks.GetTask(userCtx, taskID)
	if err != nil {
		return b.sendTextWithRemove(chatID, userMessage(err))
	}
	if err := b.deps.Tasks.DeleteTask(userCtx, taskID); err != nil {
		return b.sendTextWithRemove(chatID, userMessage(err))
	}

	b.logger.Info("task deleted from chat", "task_id", task.ID, "user_id", user.ID)
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 Task “%s” deleted.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(userCtx, chatID)
}

// handleStatus implements /status <id> <status>.
func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /status &lt;id&gt; &lt;status&gt;, e.g. /status 3f2a9c1b done")
	}

	userCtx, _, err := b.userContext(ctx, msg.From)
	if err != nil {
		return err
	}
	taskID, err := b.resolveTask(userCtx, args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, refMessage(err))
	}

	task, err := b.deps.Tasks.UpdateTaskStatus(userCtx, taskID, normalizeStatus(args[1]))
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 Task “%s” is now <b>%s</b>.", escape(normalizeTitle(task.Title)), task.Status))
}

// handleDelete implements /delete <id>.
func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /delete 3f2a9c1b")
	}

	userCtx, _, err := b.userContext(ctx, msg.From)
	if err != nil {
		return err
	}
	taskID, err := b.resolveTask(userCtx, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, refMessage(err))
	}

	task, err := b.deps.Tasks.GetTask(userCtx, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if err := b.deps.Tasks.DeleteTask(userCtx, taskID); err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Task “%s” deleted.", escape(normalizeTitle(task.Title))))
}

// resolveTask turns a typed id or id prefix into a full task id.
func (b *Bot) resolveTask(userCtx context.Context, ref string) (string, error) {
	tasks, err := b.deps.Tasks.ListTasks(userCtx)
	if err != nil {
		return "", err
	}
	return resolveTaskID(tasks, ref)
}

func resolveTaskID(tasks []model.Task, ref string) (string, error) {
	ref = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ref), "#"))
	if ref == "" {
		return "", errTaskRefNotFound
	}

	var match string
	for _, task := range tasks {
		id := strings.ToLower(task.ID)
		if id == ref {
			return task.ID, nil
		}
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", errTaskRefAmbiguous
			}
			match = task.ID
		}
	}
	if match == "" {
		return "", errTaskRefNotFound
	}
	return match, nil
}

func refMessage(err error) string {
	switch {
	case errors.Is(err, errTaskRefNotFound):
		return "Task not found."
	case errors.Is(err, errTaskRefAmbiguous):
		return "Several tasks start with that id. Type a few more characters."
	default:
		var opErr *service.OpError
		if errors.As(err, &opErr) {
			return userMessage(err)
		}
		return "Something went wrong. Please try again."
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelCategories):
		return true, b.handleCategories(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}
