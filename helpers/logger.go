package helpers

import (
	"fmt"
	"log"
	"os"
	"time"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(component string, err error)
	LogInfo(format string, args ...interface{})
}

// FileLogger appends errors to a diagnostic log file
type FileLogger struct {
	errorFile string
}

// NewFileLogger creates a new file-backed logger instance
func NewFileLogger(errorFile string) *FileLogger {
	return &FileLogger{
		errorFile: errorFile,
	}
}

// LogError logs an error to a file with component name and timestamp
func (l *FileLogger) LogError(component string, err error) {
	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		log.Printf("failed to open error log: %v\n", fileErr)
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	f.WriteString(fmt.Sprintf("[%s] [%s] %s\n", timestamp, component, err.Error()))
}

// LogInfo logs an informational message
func (l *FileLogger) LogInfo(format string, args ...interface{}) {
	log.Printf(format, args...)
}
