package config

import "famcal/internal/model"

func defaultMembers() []model.Member {
	grade := func(n int) *int { return &n }
	school := func(s string) *string { return &s }
	return []model.Member{
		{ID: "sunwoo", Name: "선우", Role: model.RoleChild, Grade: grade(3), School: school("초등학교"), Color: "#4A90D9"},
		{ID: "chanwoo", Name: "찬우", Role: model.RoleChild, Grade: grade(1), School: school("초등학교"), Color: "#50B86C"},
		{ID: "jaeho", Name: "재호", Role: model.RoleParent, Color: "#F5A623"},
		{ID: "sooyoung", Name: "수영", Role: model.RoleParent, Color: "#D0608E"},
	}
}

func defaultCategories() []model.Category {
	return []model.Category{
		{ID: "school", Name: "학교", Color: "#4A90D9"},
		{ID: "academy", Name: "학원", Color: "#7B61FF"},
		{ID: "talent", Name: "예체능", Color: "#F5A623"},
		{ID: "english", Name: "영어", Color: "#50B86C"},
		{ID: "sports", Name: "운동", Color: "#E94B3C"},
		{ID: "family", Name: "가족", Color: "#D0608E"},
		{ID: "dinner", Name: "식사", Color: "#8D6E63"},
		{ID: "conference", Name: "상담", Color: "#00897B"},
		{ID: "class", Name: "수업", Color: "#5C6BC0"},
		{ID: "etc", Name: "기타", Color: "#9E9E9E"},
	}
}

func defaultPeriods() []model.Period {
	return []model.Period{
		{Label: "등교", StartTime: "08:40", EndTime: "08:50"},
		{Label: "1교시", StartTime: "09:00", EndTime: "09:40"},
		{Label: "2교시", StartTime: "09:50", EndTime: "10:30"},
		{Label: "3교시", StartTime: "10:40", EndTime: "11:20"},
		{Label: "4교시", StartTime: "11:30", EndTime: "12:10"},
		{Label: "급식", StartTime: "12:10", EndTime: "13:00"},
		{Label: "5교시", StartTime: "13:00", EndTime: "13:40"},
		{Label: "6교시", StartTime: "13:50", EndTime: "14:30"},
	}
}
