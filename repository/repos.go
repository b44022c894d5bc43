package repository

import (
	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/entity"
	"github.com/omni/question-oracle/repository/postgres"
)

type Repo struct {
	Checkpoints entity.CheckpointsRepo
	Answers     entity.AnswersRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Checkpoints: postgres.NewCheckpointsRepo("checkpoints", db),
		Answers:     postgres.NewAnswersRepo("answers", db),
	}
}
