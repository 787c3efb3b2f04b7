package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Разрешение конфликтов имен: правило "имя / имя (2) / имя (3) ...".
// Чистые функции без обращений к каталогу; вызывающий обязан пополнять
// множество существующих имен по мере выдачи новых внутри одного батча,
// иначе два элемента батча получат одно имя.

var numberedSuffixRe = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// splitName отделяет расширение по последней точке; ведущая точка
// (".bashrc") расширением не считается
func splitName(filename string) (base, ext string) {
	i := strings.LastIndex(filename, ".")
	if i <= 0 || i == len(filename)-1 {
		return filename, ""
	}
	return filename[:i], filename[i:]
}

// resolveName возвращает имя, не встречающееся в existing.
// Если desired уже имеет вид "base (n)", нумерация продолжается с n,
// поэтому повторное разрешение монотонно наращивает счетчик.
func resolveName(base, ext string, existing map[string]struct{}) string {
	desired := base + ext
	if _, ok := existing[desired]; !ok {
		return desired
	}

	maxN := 1
	if m := numberedSuffixRe.FindStringSubmatch(base); m != nil {
		base = strings.TrimRight(m[1], " ")
		if n, err := strconv.Atoi(m[2]); err == nil && n > maxN {
			maxN = n
		}
	}

	// Ищем максимальный существующий суффикс "base (n)ext"
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + ` \((\d+)\)` + regexp.QuoteMeta(ext) + `$`)
	for name := range existing {
		if m := re.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxN {
				maxN = n
			}
		}
	}

	candidate := fmt.Sprintf("%s (%d)%s", base, maxN+1, ext)
	for {
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
		maxN++
		candidate = fmt.Sprintf("%s (%d)%s", base, maxN+1, ext)
	}
}

// ResolveFileName разрешает имя файла, сохраняя расширение
func ResolveFileName(desired string, existing map[string]struct{}) string {
	base, ext := splitName(desired)
	return resolveName(base, ext, existing)
}

// ResolveFolderName разрешает имя папки; расширения у папок нет
func ResolveFolderName(desired string, existing map[string]struct{}) string {
	return resolveName(desired, "", existing)
}
