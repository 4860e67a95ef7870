package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/din-network/din-monitor/pkg/bus"
	kafka "github.com/segmentio/kafka-go"
)

// Output writes every bus message as a JSON line to a file and, when
// configured, to a kafka topic.
type Output struct {
	Path        string
	f           *os.File
	lock        sync.Mutex
	kafkaWriter *kafka.Writer
}

type KafkaConfig struct {
	Topic            string
	BootstrapServers []string
}

// CheckFile makes sure the parent directory of filePath exists.
func CheckFile(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory %s: %v", dir, err)
	}
	return nil
}

func NewFileOutput(filePath string, kafkaConfig *KafkaConfig) (*Output, error) {
	err := CheckFile(filePath)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Path: filePath,
		f:    f,
	}

	if kafkaConfig != nil && len(kafkaConfig.BootstrapServers) > 0 {
		output.kafkaWriter = &kafka.Writer{
			Addr:       kafka.TCP(kafkaConfig.BootstrapServers...),
			Topic:      kafkaConfig.Topic,
			BatchBytes: 10 * 1024 * 1024, // 10MB
			BatchSize:  1,
		}
	}

	return output, nil
}

func (o *Output) Name() string {
	return "file:" + o.Path
}

// Send implements bus.Transport. The message topic is used as the kafka key.
func (o *Output) Send(ctx context.Context, msg *bus.Message) error {
	entry, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not encode message %s: %v", msg.ID, err)
	}
	return o.WriteEntry(ctx, []byte(msg.Topic), entry)
}

func (o *Output) WriteEntry(ctx context.Context, key, entry []byte) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	_, err := o.f.Write(append(entry, byte('\n')))
	if err != nil {
		return err
	}
	if o.kafkaWriter != nil {
		err = o.kafkaWriter.WriteMessages(ctx, kafka.Message{Key: key, Value: entry})
		if err != nil {
			return fmt.Errorf("could not write to kafka: %v", err)
		}
	}
	return nil
}

func (o *Output) Close() error {
	if o.kafkaWriter != nil {
		if err := o.kafkaWriter.Close(); err != nil {
			return err
		}
	}
	return o.f.Close()
}
