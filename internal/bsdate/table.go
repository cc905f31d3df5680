package bsdate

// monthDays lists BS month lengths (Baisakh..Chaitra) from 2070 onwards.
var monthDays = [][12]int{
	{31, 31, 31, 32, 31, 31, 29, 30, 30, 29, 30, 30}, // 2070
	{31, 31, 32, 31, 31, 31, 30, 29, 30, 29, 30, 30}, // 2071
	{31, 32, 31, 32, 31, 30, 30, 29, 30, 29, 30, 30}, // 2072
	{31, 32, 31, 32, 31, 30, 30, 30, 29, 29, 30, 31}, // 2073
	{31, 31, 31, 32, 31, 31, 30, 29, 30, 29, 30, 30}, // 2074
	{31, 31, 32, 31, 31, 31, 30, 29, 30, 29, 30, 30}, // 2075
	{31, 32, 31, 32, 31, 30, 30, 30, 29, 29, 30, 30}, // 2076
	{31, 32, 31, 32, 31, 30, 30, 30, 29, 30, 29, 31}, // 2077
	{31, 31, 31, 32, 31, 31, 30, 29, 30, 29, 30, 30}, // 2078
	{31, 31, 32, 31, 31, 31, 30, 29, 30, 29, 30, 30}, // 2079
	{31, 32, 31, 32, 31, 30, 30, 30, 29, 29, 30, 30}, // 2080
	{31, 32, 31, 32, 31, 30, 30, 30, 29, 30, 29, 31}, // 2081
	{31, 31, 32, 31, 31, 30, 30, 30, 29, 30, 30, 30}, // 2082
	{31, 31, 32, 31, 31, 30, 30, 30, 29, 30, 30, 30}, // 2083
	{31, 31, 32, 31, 31, 30, 30, 30, 29, 30, 30, 30}, // 2084
	{31, 32, 31, 32, 30, 31, 30, 30, 29, 30, 30, 30}, // 2085
	{30, 32, 31, 32, 31, 30, 30, 30, 29, 30, 30, 30}, // 2086
	{31, 31, 32, 31, 31, 31, 30, 30, 29, 30, 30, 30}, // 2087
	{30, 31, 32, 32, 30, 31, 30, 30, 29, 30, 30, 30}, // 2088
	{30, 32, 31, 32, 31, 30, 30, 30, 29, 30, 30, 30}, // 2089
	{30, 32, 31, 32, 31, 30, 30, 30, 29, 30, 30, 30}, // 2090
}
