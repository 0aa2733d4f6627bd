// Пакет rbac — логика определения роли пользователя приложения.
// Роли выводятся из групп IdP: группы администраторов дают app_admin,
// группы клиентов — user. Роль можно только повысить, не понизить.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "app_admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	wa := roleWeight[a]
	wb := roleWeight[b]
	if wa >= wb {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя на основе его групп IdP.
// Проверяет принадлежность к adminGroups и userGroups.
// Возвращает максимальную роль из всех совпадений.
// Если ни одна группа не совпала — возвращает пустую строку.
func MapGroupsToRole(groups []string, adminGroups, userGroups []string) string {
	adminSet := toSet(adminGroups)
	userSet := toSet(userGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if userSet[g] {
			roles = append(roles, RoleUser)
		}
	}

	return HighestRole(roles)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
