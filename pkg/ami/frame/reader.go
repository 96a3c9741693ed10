package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrLineTooLong строка кадра превышает допустимую длину
	ErrLineTooLong = errors.New("frame line too long")

	// ErrTooManyFields кадр содержит слишком много полей
	ErrTooManyFields = errors.New("too many fields in frame")
)

// ReaderOption опция для настройки Reader
type ReaderOption func(*Reader)

// WithMaxLineLength устанавливает максимальную длину строки
func WithMaxLineLength(n int) ReaderOption {
	return func(r *Reader) {
		r.maxLineLength = n
	}
}

// WithMaxFields устанавливает максимальное количество полей в кадре
func WithMaxFields(n int) ReaderOption {
	return func(r *Reader) {
		r.maxFields = n
	}
}

// Reader читает кадры из потока в порядке их поступления
type Reader struct {
	br            *bufio.Reader
	maxLineLength int
	maxFields     int
}

// NewReader создает Reader поверх r
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		br:            bufio.NewReaderSize(r, 16*1024),
		maxLineLength: 64 * 1024,
		maxFields:     512,
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// ReadBanner читает строку приветствия ("Asterisk Call Manager/5.0.1"),
// которую АТС присылает сразу после установки соединения
func (r *Reader) ReadBanner() (string, error) {
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// ReadFrame читает следующий кадр. Пустые строки между кадрами пропускаются.
// При ошибке протокола (слишком длинная строка, слишком много полей) кадр
// дочитывается до границы и возвращается вместе с ошибкой: в нем только
// разобранные поля, но ActionID сохраняется всегда, если АТС его прислала.
func (r *Reader) ReadFrame() (Frame, error) {
	f := make(Frame)
	var protoErr error

	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				protoErr = err
				continue
			}
			if errors.Is(err, io.EOF) && (len(f) > 0 || protoErr != nil) {
				// Поток закрыт посреди кадра
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if line == "" {
			if len(f) == 0 && protoErr == nil {
				// Разделитель между кадрами
				continue
			}
			break
		}

		if len(f) >= r.maxFields {
			if protoErr == nil {
				protoErr = ErrTooManyFields
			}
			keepActionID(f, line)
			continue
		}

		ParseLine(f, line)
	}

	return f, protoErr
}

// keepActionID переносит в f поле ActionID из строки line, если оно там есть
func keepActionID(f Frame, line string) {
	if _, ok := f[KeyActionID]; ok {
		return
	}
	tmp := make(Frame, 1)
	ParseLine(tmp, line)
	if id, ok := tmp[KeyActionID]; ok {
		f[KeyActionID] = id
	}
}

// ParseLine добавляет в кадр одну строку протокола.
// Строки без разделителя ":" (вывод команд) накапливаются в поле output.
// Повторяющиеся ключи объединяются через перевод строки.
func ParseLine(f Frame, line string) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		appendValue(f, KeyOutput, line)
		return
	}

	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])
	if key == "" || strings.ContainsAny(key, " \t") {
		appendValue(f, KeyOutput, line)
		return
	}
	appendValue(f, key, value)
}

// Parse разбирает один кадр из готового блока текста
func Parse(block string) (Frame, error) {
	f := make(Frame)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		ParseLine(f, line)
	}
	if len(f) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	return f, nil
}

func appendValue(f Frame, key, value string) {
	if prev, ok := f[key]; ok {
		f[key] = prev + "\n" + value
		return
	}
	f[key] = value
}

// readLine читает одну строку без завершающего \r\n
func (r *Reader) readLine() (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.br.ReadLine()
		if err != nil {
			return "", err
		}
		if len(buf)+len(chunk) > r.maxLineLength {
			// Дочитываем строку до конца и сообщаем об ошибке
			for isPrefix {
				_, isPrefix, err = r.br.ReadLine()
				if err != nil {
					return "", err
				}
			}
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)
		if !isPrefix {
			break
		}
	}
	return strings.TrimRight(string(buf), "\r"), nil
}
