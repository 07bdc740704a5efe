package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-manager/internal/model"
	"task-manager/internal/validation"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
	stagePriority
	stageDueDate
)

type conversationState struct {
	stage    conversationStage
	input    validation.TaskInput
	category string
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, _, err := b.userContext(ctx, msg.From); err != nil {
		return err
	}
	b.clearConfirmation(msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

// handleConversation advances the /newtask dialog by one answer. Each answer
// is checked on its own so a mistake only repeats the current step.
func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		candidate := state.input
		candidate.Title = text
		if problem := b.fieldProblem(candidate, "title"); problem != "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, escape(problem)+". Try another title.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			candidate := state.input
			candidate.Description = text
			if problem := b.fieldProblem(candidate, "description"); problem != "" {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(problem)+".", skipKeyboard())
			}
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category or type a new one (or Skip).", b.categoryKeyboard(ctx, msg.From))
	case stageCategory:
		if !isSkipInput(text) {
			if len([]rune(text)) > 50 {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Category names are at most 50 characters.", skipKeyboard())
			}
			state.category = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "⚡️ How important is it?", priorityKeyboard())
	case stagePriority:
		priority := model.PriorityMedium
		if !isSkipInput(text) {
			priority = model.Priority(strings.ToLower(text))
			if !priority.Valid() {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Choose one of low, medium, high, urgent.", priorityKeyboard())
			}
		}
		state.input.Priority = string(priority)
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2026-11-30</code> or <code>2026-11-30 18:00</code> (or Skip).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			candidate := state.input
			candidate.DueDate = text
			if problem := b.fieldProblem(candidate, "due_date"); problem != "" {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(problem)+". Use <code>2026-11-30</code> or Skip.", skipKeyboard())
			}
			state.input.DueDate = text
		}
		err := b.finishTaskCreation(ctx, msg.From, state, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "The dialog was reset. Try again with /newtask.")
	}
}

// fieldProblem returns the first validation message for field, if any.
func (b *Bot) fieldProblem(input validation.TaskInput, field string) string {
	if input.Priority == "" {
		input.Priority = string(model.PriorityMedium)
	}
	if input.Title == "" && field != "title" {
		input.Title = "placeholder"
	}
	_, problems := validation.ValidateTask(input, b.now())
	if msgs := problems[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	userCtx, user, err := b.userContext(ctx, from)
	if err != nil {
		return err
	}

	input := state.input
	if state.category != "" {
		category, err := b.deps.Categories.EnsureCategory(userCtx, state.category)
		if err != nil {
			return b.sendTextWithRemove(chatID, userMessage(err))
		}
		input.CategoryID = category.ID
	}

	task, err := b.deps.Tasks.CreateTask(userCtx, input)
	if err != nil {
		return b.sendTextWithRemove(chatID, userMessage(err))
	}

	b.logger.Info("task created from chat", "task_id", task.ID, "user_id", user.ID)

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != nil {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(*task.Description)))
	}
	if state.category != "" {
		summary.WriteString(fmt.Sprintf("• <b>Category:</b> %s\n", categoryLabel(state.category)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", task.DueDate.In(b.now().Location()).Format("2006-01-02 15:04")))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(userCtx, chatID)
}

// categoryKeyboard offers the sender's existing categories.
func (b *Bot) categoryKeyboard(ctx context.Context, from *tgbotapi.User) tgbotapi.ReplyKeyboardMarkup {
	var names []string
	if userCtx, _, err := b.userContext(ctx, from); err == nil {
		if categories, err := b.deps.Categories.ListCategories(userCtx); err == nil {
			for _, cat := range categories {
				names = append(names, cat.Name)
			}
		}
	}
	return categoryKeyboard(names)
}
