package action

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Separator разделяет имя команды и временную метку в ActionID.
// В именах команд этот символ не встречается.
const Separator = "_"

// idCounter глобальный счетчик, исключающий совпадение ActionID
// для двух одинаковых команд в пределах одной миллисекунды
var idCounter atomic.Uint64

// nowMillis источник времени, подменяется в тестах
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// MakeActionID генерирует идентификатор действия вида <label>_<epochMillis>.<seq>
func MakeActionID(label string) string {
	label = strings.ReplaceAll(label, Separator, "-")

	var b strings.Builder
	b.Grow(len(label) + 24)
	b.WriteString(label)
	b.WriteString(Separator)
	b.WriteString(strconv.FormatInt(nowMillis(), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(idCounter.Add(1), 10))
	return b.String()
}

// VerbOfActionID возвращает имя команды из ActionID.
// ok == false, если в id нет разделителя.
func VerbOfActionID(id string) (verb string, ok bool) {
	idx := strings.Index(id, Separator)
	if idx < 0 {
		return "", false
	}
	return id[:idx], true
}
