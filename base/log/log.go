// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"strings"

	"github.com/emicklei/go-restful/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	// setup default logger
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

func ResponseLogger(resp *restful.Response) *zap.Logger {
	return logger.With(zap.String("request_id", resp.Header().Get("X-Request-ID")))
}

// AddFlags registers the flags read by SetLogger.
func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-level", "", "minimum level of log entries (debug, info, warn, error); defaults to debug with --debug, info otherwise")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
	flagSet.Bool("log-compress", false, "compress rotated log files with gzip")
}

// SetLogger replaces the global logger. Debug mode writes colored console
// lines, otherwise entries are JSON. An invalid --log-level is reported
// and ignored.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var levelErr error
	if text, _ := flagSet.GetString("log-level"); text != "" {
		if parsed, err := zapcore.ParseLevel(text); err != nil {
			levelErr = err
		} else {
			level = parsed
		}
	}
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if rotated := rotatedFile(flagSet); rotated != nil {
		writers = append(writers, zapcore.AddSync(rotated))
	}
	logger = zap.New(zapcore.NewCore(newEncoder(debug), zap.CombineWriteSyncers(writers...), level))
	if levelErr != nil {
		logger.Warn("invalid log level", zap.Error(levelErr))
	}
}

func newEncoder(debug bool) zapcore.Encoder {
	timeEncoder := zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	if debug {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = timeEncoder
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = timeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// rotatedFile returns nil unless --log-path is set.
func rotatedFile(flagSet *pflag.FlagSet) *lumberjack.Logger {
	path, _ := flagSet.GetString("log-path")
	if path == "" {
		return nil
	}
	rotated := &lumberjack.Logger{Filename: path}
	rotated.MaxSize, _ = flagSet.GetInt("log-max-size")
	rotated.MaxAge, _ = flagSet.GetInt("log-max-age")
	rotated.MaxBackups, _ = flagSet.GetInt("log-max-backups")
	rotated.Compress, _ = flagSet.GetBool("log-compress")
	return rotated
}

const mysqlPrefix = "mysql://"

// RedactDBURL masks user name and password in a data store URL.
func RedactDBURL(rawURL string) string {
	if strings.HasPrefix(rawURL, mysqlPrefix) {
		parsed, err := mysql.ParseDSN(rawURL[len(mysqlPrefix):])
		if err != nil {
			return rawURL
		}
		parsed.User = strings.Repeat("x", len(parsed.User))
		parsed.Passwd = strings.Repeat("x", len(parsed.Passwd))
		return mysqlPrefix + parsed.FormatDSN()
	} else {
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.User == nil {
			return rawURL
		}
		username := parsed.User.Username()
		password, _ := parsed.User.Password()
		parsed.User = url.UserPassword(strings.Repeat("x", len(username)), strings.Repeat("x", len(password)))
		return parsed.String()
	}
}
