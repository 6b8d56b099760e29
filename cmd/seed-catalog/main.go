package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/config"
	"github.com/hskprep/hsk-backend/internal/database"
	"github.com/hskprep/hsk-backend/internal/logger"
	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/repository"
)

// seedQuestion is one multiple-choice item with the correct answer first;
// choices are shuffled by display order in the insert below.
type seedQuestion struct {
	text    string
	correct string
	wrong   [3]string
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding HSK Catalog ===")

	// ─── HSK Levels ────────────────────────────────────────────────────
	levels := []struct {
		id    int
		name  string
		words int
	}{
		{1, "HSK 1", 150},
		{2, "HSK 2", 300},
		{3, "HSK 3", 600},
		{4, "HSK 4", 1200},
		{5, "HSK 5", 2500},
		{6, "HSK 6", 5000},
	}
	for _, lvl := range levels {
		_, err := pool.Exec(ctx, `
			INSERT INTO hsk_levels (id, name, vocabulary_size)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`,
			lvl.id, lvl.name, lvl.words)
		if err != nil {
			log.Fatal().Err(err).Int("level", lvl.id).Msg("Failed to seed HSK level")
		}
	}
	fmt.Println("HSK levels seeded")

	// ─── Question Bank ─────────────────────────────────────────────────
	bankID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO question_banks (id, name, hsk_level_id, is_active)
		VALUES ($1, $2, $3, TRUE)`,
		bankID, "HSK 3 Vocabulary and Grammar", 3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create question bank")
	}
	fmt.Printf("Created question bank %s\n", bankID)

	// ─── Questions ─────────────────────────────────────────────────────
	questions := []seedQuestion{
		{"「我比他高。」这句话的意思是？", "I am taller than him", [3]string{"He is taller than me", "We are the same height", "He is very tall"}},
		{"选择正确的量词：一___书", "本", [3]string{"个", "张", "条"}},
		{"「虽然…但是…」表示什么关系？", "转折", [3]string{"因果", "并列", "递进"}},
		{"「马上」的意思是？", "immediately", [3]string{"on a horse", "slowly", "yesterday"}},
		{"选择正确的词填空：他___地跑过来。", "快快", [3]string{"快乐", "快的", "快了"}},
		{"「把」字句的正确语序是？", "主语 + 把 + 宾语 + 动词", [3]string{"把 + 主语 + 动词 + 宾语", "主语 + 动词 + 把 + 宾语", "宾语 + 把 + 主语 + 动词"}},
		{"「除了周末，我每天都上班。」说话人周末上班吗？", "不上班", [3]string{"上班", "有时上班", "不知道"}},
		{"「了」在「我吃了饭」中表示？", "动作完成", [3]string{"变化", "将来", "可能"}},
		{"选择反义词：「容易」", "难", [3]string{"简单", "方便", "轻松"}},
		{"「越来越」后面应该接？", "形容词", [3]string{"名词", "量词", "代词"}},
	}

	for i, q := range questions {
		questionID := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO questions (id, text, hsk_level_id, points, is_active)
			VALUES ($1, $2, $3, 1, TRUE)`,
			questionID, q.text, 3)
		if err != nil {
			log.Fatal().Err(err).Int("question", i).Msg("Failed to insert question")
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO question_bank_items (bank_id, question_id)
			VALUES ($1, $2)`,
			bankID, questionID)
		if err != nil {
			log.Fatal().Err(err).Int("question", i).Msg("Failed to link question to bank")
		}

		// Rotate the correct answer's position so it is not always choice A.
		texts := []string{q.wrong[0], q.wrong[1], q.wrong[2]}
		correctOrd := i % 4
		ordered := make([]string, 0, 4)
		ordered = append(ordered, texts[:correctOrd]...)
		ordered = append(ordered, q.correct)
		ordered = append(ordered, texts[correctOrd:]...)

		for ord, text := range ordered {
			_, err := pool.Exec(ctx, `
				INSERT INTO choices (id, question_id, text, is_correct, ord)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), questionID, text, ord == correctOrd, ord)
			if err != nil {
				log.Fatal().Err(err).Int("question", i).Msg("Failed to insert choice")
			}
		}
	}
	fmt.Printf("Inserted %d questions\n", len(questions))

	// ─── Sample Exam ───────────────────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	exam := &model.Exam{
		Title:           "HSK 3 Practice Exam",
		Description:     "A short practice exam covering HSK 3 vocabulary and grammar.",
		HSKLevelID:      3,
		QuestionBankID:  bankID,
		DurationMinutes: 30,
		TotalQuestions:  10,
		PassingScore:    60,
		IsActive:        true,
		StartDate:       time.Now(),

		RandomizeQuestions:     true,
		ShowResultsImmediately: true,
		AllowRetake:            true,
		MaxAttempts:            3,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	fmt.Printf("Created exam %s (%s)\n", exam.ID, exam.Title)
	fmt.Println("Done")
}
