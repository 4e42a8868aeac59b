package simulator

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/chrisdamba/dronesim/internal/cloudwriter"
	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/output"
	"github.com/chrisdamba/dronesim/internal/simulator/producers"
)

// OutputDestination receives every published record as a JSON message.
type OutputDestination interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

// ConsoleOutput prints one line per message, prefixed by its topic.
type ConsoleOutput struct {
	w io.Writer
}

// NoopOutput discards everything. Sweeps use it so that parallel runs do not
// interleave their records.
type NoopOutput struct{}

type JSONOutput struct {
	dir   string
	files map[string]*os.File
}

type CSVOutput struct {
	dir     string
	files   map[string]*os.File
	writers map[string]*csv.Writer
	headers map[string][]string
}

type ParquetOutput struct {
	dir                string
	mu                 sync.Mutex
	writers            map[string]*writer.ParquetWriter
	files              map[string]source.ParquetFile
	cloudWriterFactory cloudwriter.CloudWriterFactory
	cloudBucketName    string
	cloudPrefix        string
}

// CloudParquetFile adapts a CloudWriter to the write-only subset of
// source.ParquetFile that the parquet writer uses.
type CloudParquetFile struct {
	cloudWriter cloudwriter.CloudWriter
	offset      int64
}

// runDir is where a run's file outputs go: one partition per run, one
// directory per topic below it.
func runDir(config *models.Config, runID string) string {
	return filepath.Join(config.OutputPath, config.OutputFolder, "run="+runID)
}

func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) WriteMessage(topic string, msg []byte) error {
	if _, err := fmt.Fprintf(c.w, "[%s] %s\n", topic, msg); err != nil {
		return fmt.Errorf("failed to write to console: %w", err)
	}
	return nil
}

func (c *ConsoleOutput) Close() error {
	if f, ok := c.w.(*os.File); ok {
		// syncing a terminal fails harmlessly
		_ = f.Sync()
	}
	return nil
}

func (NoopOutput) WriteMessage(string, []byte) error { return nil }
func (NoopOutput) Close() error { return nil }

func NewJSONOutput(dir string) *JSONOutput {
	return &JSONOutput{
		dir:   dir,
		files: make(map[string]*os.File),
	}
}

func (j *JSONOutput) WriteMessage(topic string, msg []byte) error {
	file, ok := j.files[topic]
	if !ok {
		fullPath := filepath.Join(j.dir, topic)
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return err
		}
		var err error
		file, err = os.Create(filepath.Join(fullPath, "data.json"))
		if err != nil {
			return err
		}
		j.files[topic] = file
	}

	if _, err := file.Write(msg); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	_, err := file.WriteString("\n")
	return err
}

func (j *JSONOutput) Close() error {
	var firstErr error
	for topic, file := range j.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", topic, err)
		}
	}
	return firstErr
}

func NewCSVOutput(dir string) *CSVOutput {
	return &CSVOutput{
		dir:     dir,
		files:   make(map[string]*os.File),
		writers: make(map[string]*csv.Writer),
		headers: make(map[string][]string),
	}
}

func (c *CSVOutput) WriteMessage(topic string, msg []byte) error {
	var event map[string]interface{}
	if err := json.Unmarshal(msg, &event); err != nil {
		return err
	}

	csvWriter, ok := c.writers[topic]
	if !ok {
		fullPath := filepath.Join(c.dir, topic)
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return err
		}
		file, err := os.Create(filepath.Join(fullPath, "data.csv"))
		if err != nil {
			return err
		}
		csvWriter = csv.NewWriter(file)
		c.files[topic] = file
		c.writers[topic] = csvWriter

		headers := c.getHeaders(event)
		if err := csvWriter.Write(headers); err != nil {
			return err
		}
		c.headers[topic] = headers
	}

	row := make([]string, len(c.headers[topic]))
	for i, header := range c.headers[topic] {
		if value, ok := event[header]; ok {
			row[i] = fmt.Sprintf("%v", value)
		}
	}
	if err := csvWriter.Write(row); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (c *CSVOutput) getHeaders(event map[string]interface{}) []string {
	headers := make([]string, 0, len(event))
	for key := range event {
		headers = append(headers, key)
	}
	sort.Strings(headers)
	return headers
}

func (c *CSVOutput) Close() error {
	var firstErr error
	for topic, csvWriter := range c.writers {
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.files[topic].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewParquetOutput(config *models.Config, runID string) (*ParquetOutput, error) {
	p := &ParquetOutput{
		dir:     runDir(config, runID),
		writers: make(map[string]*writer.ParquetWriter),
		files:   make(map[string]source.ParquetFile),
	}

	if config.CloudStorage.Provider == "" {
		return p, nil
	}

	var factory cloudwriter.CloudWriterFactory
	var err error
	switch config.CloudStorage.Provider {
	case "s3":
		factory, err = cloudwriter.NewS3WriterFactory(context.Background(), config.CloudStorage.Region)
	default:
		return nil, fmt.Errorf("unsupported cloud storage provider: %s", config.CloudStorage.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
	}

	p.cloudWriterFactory = factory
	p.cloudBucketName = config.CloudStorage.BucketName
	p.cloudPrefix = path.Join(config.OutputFolder, "run="+runID)
	return p, nil
}

// NewCloudParquetOutput writes every topic through factory, under prefix.
func NewCloudParquetOutput(factory cloudwriter.CloudWriterFactory, bucket, prefix string) *ParquetOutput {
	return &ParquetOutput{
		writers:            make(map[string]*writer.ParquetWriter),
		files:              make(map[string]source.ParquetFile),
		cloudWriterFactory: factory,
		cloudBucketName:    bucket,
		cloudPrefix:        prefix,
	}
}

func NewCloudParquetFile(cloudWriter cloudwriter.CloudWriter) *CloudParquetFile {
	return &CloudParquetFile{cloudWriter: cloudWriter}
}

func (c *CloudParquetFile) Open(string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Create(string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		c.offset = offset
	case io.SeekCurrent:
		c.offset += offset
	case io.SeekEnd:
		return 0, fmt.Errorf("seek from end not supported for cloud storage")
	}
	return c.offset, nil
}

func (c *CloudParquetFile) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read not supported for cloud storage")
}

func (c *CloudParquetFile) Write(p []byte) (int, error) {
	n, err := c.cloudWriter.Write(p)
	c.offset += int64(n)
	return n, err
}

func (c *CloudParquetFile) Close() error {
	return c.cloudWriter.Close()
}

func (p *ParquetOutput) WriteMessage(topic string, msg []byte) error {
	record, err := newRecord(topic)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg, record); err != nil {
		return fmt.Errorf("decoding %s record: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pw, ok := p.writers[topic]
	if !ok {
		pw, err = p.createNewWriter(topic)
		if err != nil {
			return fmt.Errorf("failed to create new writer: %w", err)
		}
	}

	if err := pw.Write(record); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (p *ParquetOutput) createNewWriter(topic string) (*writer.ParquetWriter, error) {
	var fw source.ParquetFile
	if p.cloudWriterFactory != nil {
		objectPath := path.Join(p.cloudPrefix, topic, "data.parquet")
		cloudWriter, err := p.cloudWriterFactory.NewWriter(p.cloudBucketName, objectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		fw = NewCloudParquetFile(cloudWriter)
	} else {
		fullPath := filepath.Join(p.dir, topic)
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return nil, err
		}
		var err error
		fw, err = local.NewLocalFileWriter(filepath.Join(fullPath, "data.parquet"))
		if err != nil {
			return nil, fmt.Errorf("failed to create local file writer: %w", err)
		}
	}

	schema, err := newRecord(topic)
	if err != nil {
		return nil, err
	}
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create ParquetWriter: %w", err)
	}

	p.writers[topic] = pw
	p.files[topic] = fw
	return pw, nil
}

func (p *ParquetOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, pw := range p.writers {
		if err := pw.WriteStop(); err != nil {
			lastErr = err
			logrus.WithError(err).WithField("topic", topic).Error("closing parquet writer")
		}
		if err := p.files[topic].Close(); err != nil {
			lastErr = err
			logrus.WithError(err).WithField("topic", topic).Error("closing parquet file")
		}
	}
	return lastErr
}

// NewOutputDestination builds the destination selected by output_format.
func NewOutputDestination(ctx context.Context, config *models.Config, runID string) (OutputDestination, error) {
	switch strings.ToLower(config.OutputFormat) {
	case models.OutputConsole, "":
		return NewConsoleOutput(os.Stdout), nil
	case models.OutputNone:
		return NoopOutput{}, nil
	case models.OutputJSON:
		return NewJSONOutput(runDir(config, runID)), nil
	case models.OutputCSV:
		return NewCSVOutput(runDir(config, runID)), nil
	case models.OutputParquet:
		out, err := NewParquetOutput(config, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Parquet output: %w", err)
		}
		return out, nil
	case models.OutputKafka:
		out, err := producers.NewSaramaProducer(config)
		if err != nil {
			return nil, err
		}
		return out, nil
	case models.OutputSQLite:
		dir := runDir(config, runID)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		out, err := output.NewSQLiteOutput(filepath.Join(dir, "events.db"), newRecord)
		if err != nil {
			return nil, err
		}
		return out, nil
	case models.OutputPostgres:
		out, err := output.NewPostgresOutput(ctx, config.Database.URL, newRecord)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", config.OutputFormat)
}
