package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistAnswersQueue    string
	FinalizeAttemptsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistAnswersQueue:    "persist_answers_queue",
	FinalizeAttemptsQueue:  "finalize_attempts_queue",
}
