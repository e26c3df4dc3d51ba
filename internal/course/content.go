package course

import (
	"fmt"
	"time"
)

// Lesson describes a single unit of the drip sequence.
type Lesson struct {
	Title       string `yaml:"title"`
	Preamble    string `yaml:"preamble"`
	VideoFile   string `yaml:"video_file"`
	FallbackURL string `yaml:"fallback_url"`
	Conclusion  string `yaml:"conclusion"`
}

// FinalVideo is the closing media item delivered after the last lesson.
type FinalVideo struct {
	File    string `yaml:"file"`
	URL     string `yaml:"url"`
	Caption string `yaml:"caption"`
}

// Config carries the lesson table, the fixed texts, and the timing knobs.
// Durations are plain integers so the whole structure round-trips through
// YAML and envconfig without custom unmarshalers.
type Config struct {
	Lessons []Lesson `yaml:"lessons"`

	Greeting          string     `yaml:"greeting"`
	PromptText        string     `yaml:"prompt_text"`
	ButtonLabelFormat string     `yaml:"button_label_format"`
	ConfirmAck        string     `yaml:"confirm_ack"`
	AutoAdvanceNotice string     `yaml:"auto_advance_notice"`
	FallbackFormat    string     `yaml:"fallback_format"`
	Completion        string     `yaml:"completion"`
	Upsell            string     `yaml:"upsell"`
	ReminderBody      string     `yaml:"reminder_body"`
	FinalVideo        FinalVideo `yaml:"final_video"`

	// AdvanceTimeoutSeconds is the auto-advance window per lesson.
	// Production deployments use the long default; test deployments
	// shorten it via config, not via code.
	AdvanceTimeoutSeconds int `yaml:"advance_timeout_seconds" envconfig:"COURSE_ADVANCE_TIMEOUT_SECONDS"`
	SendPauseSeconds      int `yaml:"send_pause_seconds" envconfig:"COURSE_SEND_PAUSE_SECONDS"`
	FinalPauseSeconds     int `yaml:"final_pause_seconds" envconfig:"COURSE_FINAL_PAUSE_SECONDS"`
	UpsellPauseSeconds    int `yaml:"upsell_pause_seconds" envconfig:"COURSE_UPSELL_PAUSE_SECONDS"`
	ReminderDelayMinutes  int `yaml:"reminder_delay_minutes" envconfig:"COURSE_REMINDER_DELAY_MINUTES"`
	SweepIntervalSeconds  int `yaml:"sweep_interval_seconds" envconfig:"COURSE_SWEEP_INTERVAL_SECONDS"`
	CleanupGraceMinutes   int `yaml:"cleanup_grace_minutes" envconfig:"COURSE_CLEANUP_GRACE_MINUTES"`
}

// LastLesson returns the index of the final lesson (1-based).
func (c *Config) LastLesson() int { return len(c.Lessons) }

// Lesson returns the 1-based lesson n.
func (c *Config) Lesson(n int) (Lesson, bool) {
	if n < 1 || n > len(c.Lessons) {
		return Lesson{}, false
	}
	return c.Lessons[n-1], true
}

// ButtonLabel renders the confirmation button caption for lesson n.
func (c *Config) ButtonLabel(n int) string {
	return fmt.Sprintf(c.ButtonLabelFormat, n)
}

// FallbackMessage renders the link message sent when the video file is unavailable.
func (c *Config) FallbackMessage(url string) string {
	return fmt.Sprintf(c.FallbackFormat, url)
}

// AdvanceTimeout returns the per-lesson auto-advance window.
func (c *Config) AdvanceTimeout() time.Duration {
	return time.Duration(c.AdvanceTimeoutSeconds) * time.Second
}

// SendPause is the short pause between consecutive sends.
func (c *Config) SendPause() time.Duration {
	return time.Duration(c.SendPauseSeconds) * time.Second
}

// FinalPause is the pause between the last lesson and finalization.
func (c *Config) FinalPause() time.Duration {
	return time.Duration(c.FinalPauseSeconds) * time.Second
}

// UpsellPause is the pause between the final media and the upsell message.
func (c *Config) UpsellPause() time.Duration {
	return time.Duration(c.UpsellPauseSeconds) * time.Second
}

// ReminderDelay is the long follow-up delay after course completion.
func (c *Config) ReminderDelay() time.Duration {
	return time.Duration(c.ReminderDelayMinutes) * time.Minute
}

// SweepInterval is the period of the session store sweeper.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// CleanupGrace is how long a completed session is retained past its
// scheduled reminder before the sweeper may remove it.
func (c *Config) CleanupGrace() time.Duration {
	return time.Duration(c.CleanupGraceMinutes) * time.Minute
}

// Normalize fills unset fields with the built-in defaults and validates
// the resulting lesson table.
func (c *Config) Normalize() error {
	def := DefaultConfig()

	if len(c.Lessons) == 0 {
		c.Lessons = def.Lessons
	}
	if c.Greeting == "" {
		c.Greeting = def.Greeting
	}
	if c.PromptText == "" {
		c.PromptText = def.PromptText
	}
	if c.ButtonLabelFormat == "" {
		c.ButtonLabelFormat = def.ButtonLabelFormat
	}
	if c.ConfirmAck == "" {
		c.ConfirmAck = def.ConfirmAck
	}
	if c.AutoAdvanceNotice == "" {
		c.AutoAdvanceNotice = def.AutoAdvanceNotice
	}
	if c.FallbackFormat == "" {
		c.FallbackFormat = def.FallbackFormat
	}
	if c.Completion == "" {
		c.Completion = def.Completion
	}
	if c.Upsell == "" {
		c.Upsell = def.Upsell
	}
	if c.ReminderBody == "" {
		c.ReminderBody = def.ReminderBody
	}
	if c.FinalVideo.File == "" && c.FinalVideo.URL == "" {
		c.FinalVideo = def.FinalVideo
	}

	if c.AdvanceTimeoutSeconds <= 0 {
		c.AdvanceTimeoutSeconds = def.AdvanceTimeoutSeconds
	}
	if c.SendPauseSeconds <= 0 {
		c.SendPauseSeconds = def.SendPauseSeconds
	}
	if c.FinalPauseSeconds <= 0 {
		c.FinalPauseSeconds = def.FinalPauseSeconds
	}
	if c.UpsellPauseSeconds <= 0 {
		c.UpsellPauseSeconds = def.UpsellPauseSeconds
	}
	if c.ReminderDelayMinutes <= 0 {
		c.ReminderDelayMinutes = def.ReminderDelayMinutes
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = def.SweepIntervalSeconds
	}
	if c.CleanupGraceMinutes <= 0 {
		c.CleanupGraceMinutes = def.CleanupGraceMinutes
	}

	for i, l := range c.Lessons {
		if l.Preamble == "" {
			return fmt.Errorf("course: lesson %d has no preamble", i+1)
		}
		if l.VideoFile == "" && l.FallbackURL == "" {
			return fmt.Errorf("course: lesson %d has neither video file nor fallback url", i+1)
		}
	}
	return nil
}

// DefaultConfig returns the built-in three-lesson Photoshop mini-course
// so the bot runs from a bare config file.
func DefaultConfig() Config {
	return Config{
		Lessons: []Lesson{
			{
				Title:       "Основы Photoshop",
				VideoFile:   "video1.mp4",
				FallbackURL: "https://disk.yandex.ru/d/eO0ffJFFLev1YA",
				Preamble: "если у тебя не загружается урок — его можно\n" +
					"открыть по ссылке: https://disk.yandex.ru/d/eO0ffJFFLev1YA\n\n" +
					"урок 1. Основы Photoshop\n\n" +
					"скачать фотошоп (https://t.me/+v_vSoBd1p6o4NjUy)\n\n" +
					"Обещанный подарок\n\n" +
					"Пак шрифтов, которым я делюсь на своем полноценном обучении.\n\n" +
					"1. подпишись на меня в инсте instagram.com/brezdenuk_/\n\n" +
					"2/ выложи свой список желаний <b>с отметкой меня</b> и любым отзывом в сторис\n\n" +
					"3/ напиши мне в личку тг\n\n" +
					"вот ссылка на инсту ↓\n" +
					"instagram.com/brezdenuk_/\n" +
					"https://t.me/brezdenuk",
				Conclusion: "📌 Отлично! Первый урок пройден!",
			},
			{
				Title:       "Создаем карточку для WB",
				VideoFile:   "video2.mp4",
				FallbackURL: "https://disk.yandex.ru/d/eO0ffJFFLev1YA",
				Preamble: "если у тебя не загружается урок — его можно\n" +
					"открыть по ссылке: https://disk.yandex.ru/d/eO0ffJFFLev1YA\n\n" +
					"урок 2. Создаем карточку для WB\n\n" +
					"Все материалы к уроку (https://t.me/+v_vSoBd1p6o4NjUy)\n\n" +
					"(повторяйте карточку за мной)",
				Conclusion: "📌 Отлично! Второй урок пройден!",
			},
			{
				Title:       "Как найти клиентов",
				VideoFile:   "video3.mp4",
				FallbackURL: "https://disk.yandex.ru/d/eO0ffJFFLev1YA",
				Preamble: "если у тебя не загружается урок — его можно\n" +
					"открыть по ссылке: https://disk.yandex.ru/d/eO0ffJFFLev1YA\n\n" +
					"урок 3. Как найти клиентов и начать зарабатывать.\n\n" +
					"В конце видео отдам подарок",
				Conclusion: "📌 Все уроки пройдены!",
			},
		},
		Greeting: "<b>привет!</b> искренне рад тебя видеть на моем мини-курсе\n\n" +
			"За 3 видео, ты узнаешь:\n\n" +
			"1. Основы дизайна, как скачать и работать в Photoshop\n\n" +
			"2. Сделаешь дизайн своего списка желаний\n\n" +
			"3. Создашь карточку товара для WB\n\n" +
			"4. Разберешься как искать клиентов и зарабатывать\n\n" +
			"<b>Я разработал лучший способ поиска заказов, мои ученики уже применили его и зарабатывают.</b>\n\n" +
			"Для тебя это точно будет полезный навык",
		PromptText:        "После просмотра видео нажмите кнопку ниже:",
		ButtonLabelFormat: "✅ Я посмотрел видео %d",
		ConfirmAck:        "✅ Вы подтвердили просмотр видео!",
		AutoAdvanceNotice: "⏰ Уже посмотрел урок? Отправляю следующий...",
		FallbackFormat:    "📺 Смотрите видео по ссылке:\n%s",
		Completion: "🎉 <b>Поздравляю! Вы завершили все видео-уроки!</b>\n\n" +
			"Теперь вас ждёт специальное видео-сообщение от автора.",
		Upsell: "<b>Поздравляю</b> тебя <b>с прохождением</b> Миникурса!\n\n" +
			"Ты проделал(а) классную работу!\n" +
			"Надеюсь теперь, ты полюбил(а) дизайн также сильно, как и я\n\n" +
			"Буду искренне рад видеть тебя на своем предобучение -\n\n" +
			"предобучение - это часть моего <b>основного курса</b>,\n" +
			"где в течении 5 дней ты сможешь побыть на нем в роли студента\n\n" +
			"Что ты получишь:\n\n" +
			"<b>+ 20 актульных способов поиска клиентов</b>\n" +
			"- Освоешь первостепенные навыки дизайна\n" +
			"- Научишься работать в Photoshop\n" +
			"- Cделашь первые качественные карточки\n" +
			"- Получишь от меня обратную связь на все вопросы\n\n\n" +
			"<b><u>Те кто прошел миникурс могут занять место на предобучении со\n" +
			"СКИДКОЙ 50% на 24 ЧАСА</u></b>\n\n" +
			"↓ ↓ ↓ ↓\n" +
			"https://t.me/Alexander_brez\n" +
			"https://t.me/Alexander_brez\n" +
			"https://t.me/Alexander_brez\n\n" +
			"напиши мне: 'дизайн' - и я покажу всю программу предобучения\n" +
			"Telegram (https://t.me/Alexander_brez)\n" +
			"Брезденюк | Дизайнер\n" +
			"Канал про дизайн: https://t.me/brezdenuk",
		ReminderBody: "<b><u>У тебя осталось 3 часа до конца скидки</u></b>\n\n" +
			"<a href='https://t.me/Alexander_brez'>Занять место по выгодной цене:</a>\n" +
			"<a href='https://t.me/Alexander_brez'>Занять место</a>\n" +
			"t.me/brezdenuk",
		FinalVideo: FinalVideo{
			File:    "final_video.mp4",
			URL:     "https://disk.yandex.ru/d/eO0ffJFFLev1YA",
			Caption: "🎯 Видео-сообщение от автора курса",
		},

		AdvanceTimeoutSeconds: 600,
		SendPauseSeconds:      1,
		FinalPauseSeconds:     3,
		UpsellPauseSeconds:    2,
		ReminderDelayMinutes:  21 * 60,
		SweepIntervalSeconds:  300,
		CleanupGraceMinutes:   60,
	}
}
