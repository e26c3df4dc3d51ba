package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/dkurbatov/coursebot/core/telegram/keyboard"
	"github.com/dkurbatov/coursebot/core/telegram/sender"
	"github.com/dkurbatov/coursebot/internal/course"
)

var errNotBound = errors.New("delivery: bot not bound yet")

// telegramDelivery implements course.Delivery over a telebot instance.
// The bot handle only exists once the run loop has started, so the
// adapter is created empty at bootstrap and bound in OnStart.
type telegramDelivery struct {
	cfg *course.Config

	mu   sync.RWMutex
	bot  *tele.Bot
	disp *sender.Dispatcher
}

func newDelivery(cfg *course.Config) *telegramDelivery {
	return &telegramDelivery{cfg: cfg}
}

func (d *telegramDelivery) bind(bot *tele.Bot, disp *sender.Dispatcher) {
	d.mu.Lock()
	d.bot = bot
	d.disp = disp
	d.mu.Unlock()
}

func (d *telegramDelivery) handles() (*tele.Bot, *sender.Dispatcher, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.bot == nil {
		return nil, nil, errNotBound
	}
	return d.bot, d.disp, nil
}

func refOf(msg *tele.Message) course.MessageRef {
	if msg == nil {
		return course.MessageRef{}
	}
	return course.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
}

// SendText implements course.Delivery.
func (d *telegramDelivery) SendText(_ context.Context, chatID int64, text string, opts course.TextOptions) (course.MessageRef, error) {
	bot, _, err := d.handles()
	if err != nil {
		return course.MessageRef{}, err
	}
	sendOpts := &tele.SendOptions{DisableWebPagePreview: !opts.WebPagePreview}
	if opts.HTML {
		sendOpts.ParseMode = tele.ModeHTML
	}
	msg, err := bot.Send(tele.ChatID(chatID), text, sendOpts)
	if err != nil {
		return course.MessageRef{}, err
	}
	return refOf(msg), nil
}

// SendVideo uploads the lesson file. A missing file is an error so the
// engine can fall back to the external link.
func (d *telegramDelivery) SendVideo(_ context.Context, chatID int64, file string) (course.MessageRef, error) {
	bot, _, err := d.handles()
	if err != nil {
		return course.MessageRef{}, err
	}
	if _, err := os.Stat(file); err != nil {
		return course.MessageRef{}, fmt.Errorf("video file %s: %w", file, err)
	}
	video := &tele.Video{File: tele.FromDisk(file)}
	msg, err := bot.Send(tele.ChatID(chatID), video, &tele.SendOptions{DisableNotification: true})
	if err != nil {
		return course.MessageRef{}, err
	}
	return refOf(msg), nil
}

// SendVideoNote sends the compact circular form of the final video.
func (d *telegramDelivery) SendVideoNote(_ context.Context, chatID int64, file string) (course.MessageRef, error) {
	bot, _, err := d.handles()
	if err != nil {
		return course.MessageRef{}, err
	}
	if _, err := os.Stat(file); err != nil {
		return course.MessageRef{}, fmt.Errorf("video file %s: %w", file, err)
	}
	note := &tele.VideoNote{File: tele.FromDisk(file)}
	msg, err := bot.Send(tele.ChatID(chatID), note)
	if err != nil {
		return course.MessageRef{}, err
	}
	return refOf(msg), nil
}

// SendPrompt posts the confirmation request with the inline watched button.
func (d *telegramDelivery) SendPrompt(_ context.Context, chatID int64, text string, lesson int) (course.MessageRef, error) {
	bot, _, err := d.handles()
	if err != nil {
		return course.MessageRef{}, err
	}
	markup := keyboard.SingleInlineMarkup(d.cfg.ButtonLabel(lesson), callbackLessonWatched, strconv.Itoa(lesson))
	msg, err := bot.Send(tele.ChatID(chatID), text, markup)
	if err != nil {
		return course.MessageRef{}, err
	}
	return refOf(msg), nil
}

// EditText rewrites a previously sent message. The edit is queued on the
// async dispatcher when one is available; edits are best-effort for the
// engine either way.
func (d *telegramDelivery) EditText(ctx context.Context, ref course.MessageRef, text string) error {
	bot, disp, err := d.handles()
	if err != nil {
		return err
	}
	target := &tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	edit := func() error {
		_, err := bot.Edit(target, text)
		return err
	}
	if disp == nil {
		return edit()
	}
	if err := disp.Enqueue(ctx, "edit.text", "editMessageText", edit); err != nil {
		return edit()
	}
	return nil
}
