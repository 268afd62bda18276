package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// LogData is a zerolog-backed Logger. LogFile is set when the build
// targeted a path and must be closed by the owner.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) WithLevel(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stdout
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

func (l *LogData) Error(msg string, args ...any) {
	l.Logger.Error().Fields(args).Msg(msg)
}

func (l *LogData) Warn(msg string, args ...any) {
	l.Logger.Warn().Fields(args).Msg(msg)
}

func (l *LogData) Info(msg string, args ...any) {
	l.Logger.Info().Fields(args).Msg(msg)
}

func (l *LogData) Debug(msg string, args ...any) {
	l.Logger.Debug().Fields(args).Msg(msg)
}

// Close releases the log file, if any.
func (l *LogData) Close() error {
	if l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}
