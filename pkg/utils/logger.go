package utils

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка настройки логирования для всего движка: evaluator, event
// bus, DCA executor и exchange-клиент логируют через один и тот же
// обёрнутый *zap.Logger, с доменными полями (fingerprint, bot_id, symbol, ...)
// вместо ad-hoc fmt.Sprintf.

import (
	"math"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig управляет созданием логгера.
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal, default info
	Format      string // json|text, default json
	Output      string // путь к файлу, пусто = stderr
	Development bool   // человекочитаемый stacktrace, более мягкие уровни
}

// Logger оборачивает *zap.Logger и кэширует его sugared-вариант.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт новый Logger по конфигурации. Никогда не возвращает
// nil: некорректный Output падает обратно на stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			sink = zapcore.AddSync(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel нормализует строковый уровень логирования. Неизвестные
// значения (включая пустую строку) падают на info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With возвращает дочерний Logger с добавленными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent добавляет поле component (например "evaluator", "dca").
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithExchange добавляет поле exchange.
func (l *Logger) WithExchange(name string) *Logger {
	return l.With(Exchange(name))
}

// WithSymbol добавляет поле symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID добавляет поле pair_id (сохранено для совместимости с
// exchange-facing кодом, унаследованным от биржевого адаптера).
func (l *Logger) WithPairID(id int) *Logger {
	return l.With(PairID(id))
}

// WithBotID добавляет поле bot_id.
func (l *Logger) WithBotID(id int64) *Logger {
	return l.With(BotID(id))
}

// WithFingerprint добавляет поле fingerprint.
func (l *Logger) WithFingerprint(fp string) *Logger {
	return l.With(Fingerprint(fp))
}

// Sugar возвращает кэшированный SugaredLogger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger создаёт логгер по конфигурации и устанавливает его как
// глобальный.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// GetGlobalLogger возвращает глобальный логгер, создавая логгер по
// умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// SetGlobalLogger заменяет глобальный логгер.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// L — короткий алиас для GetGlobalLogger, удобен в одну строку.
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей
// ============================================================

// Exchange-facing fields, unchanged from the teacher's adapter logging.
func Exchange(name string) zap.Field  { return zap.String("exchange", name) }
func Symbol(symbol string) zap.Field  { return zap.String("symbol", symbol) }
func PairID(id int) zap.Field         { return zap.Int("pair_id", id) }
func OrderID(id string) zap.Field     { return zap.String("order_id", id) }
func Price(p float64) zap.Field       { return zap.Float64("price", p) }
func Volume(v float64) zap.Field      { return zap.Float64("volume", v) }
func Spread(s float64) zap.Field      { return zap.Float64("spread", s) }
func PNL(p float64) zap.Field         { return zap.Float64("pnl", p) }
func Side(side string) zap.Field      { return zap.String("side", side) }
func State(state string) zap.Field    { return zap.String("state", state) }
func Latency(ms float64) zap.Field    { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field   { return zap.String("request_id", id) }
func UserID(id int) zap.Field         { return zap.Int("user_id", id) }
func Component(name string) zap.Field { return zap.String("component", name) }

// Domain fields added for the condition-evaluation/bot-dispatch engine.
func Fingerprint(fp string) zap.Field { return zap.String("fingerprint", fp) }
func BotID(id int64) zap.Field        { return zap.Int64("bot_id", id) }
func Timeframe(tf string) zap.Field   { return zap.String("timeframe", tf) }
func Cycle(n int64) zap.Field         { return zap.Int64("cycle", n) }
func TriggerID(id int64) zap.Field    { return zap.Int64("trigger_id", id) }
func Indicator(name string) zap.Field { return zap.String("indicator", name) }

// Переэкспортированные общие конструкторы полей zap, чтобы вызывающему коду
// не приходилось импортировать go.uber.org/zap напрямую.
func String(key, value string) zap.Field          { return zap.String(key, value) }
func Int(key string, value int) zap.Field         { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field       { return zap.Bool(key, value) }
func Err(err error) zap.Field                     { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface преобразует zap.Field'ы в плоский []interface{} вида
// [key1, value1, key2, value2, ...] для передачи в SugaredLogger, сохраняя
// порядок полей.
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		result = append(result, f.Key, fieldValue(f))
	}
	return result
}

// fieldValue extracts a zap.Field's value without an intermediate encoder,
// covering the field constructors this package actually produces.
func fieldValue(f zap.Field) interface{} {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.BoolType:
		return f.Integer == 1
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return f.Integer
	case zapcore.Float64Type:
		return math.Float64frombits(uint64(f.Integer))
	case zapcore.Float32Type:
		return math.Float32frombits(uint32(f.Integer))
	default:
		if f.Interface != nil {
			return f.Interface
		}
		return f.String
	}
}
