package quran

// surahAyahCount holds the number of ayahs in each surah, 1-indexed by position.
var surahAyahCount = [114]int{
	7, 286, 200, 176, 120, 165, 206, 75, 129, 109,
	123, 111, 43, 52, 99, 128, 111, 110, 98, 135,
	112, 78, 118, 64, 77, 227, 93, 88, 69, 60,
	34, 30, 73, 54, 45, 83, 182, 88, 75, 85,
	54, 53, 89, 59, 37, 35, 38, 29, 18, 45,
	60, 49, 62, 55, 78, 96, 29, 22, 24, 13,
	14, 11, 11, 18, 12, 12, 30, 52, 52, 44,
	28, 28, 20, 56, 40, 31, 50, 40, 46, 42,
	29, 19, 36, 25, 22, 17, 19, 26, 30, 20,
	15, 21, 11, 8, 8, 19, 5, 8, 8, 11,
	11, 8, 3, 9, 5, 4, 7, 3, 6, 3,
	5, 4, 5, 6,
}

// juzBounds holds the first and last ayah of each juz, in order.
var juzBounds = [30][2]AyahKey{
	{{1, 1}, {2, 141}},
	{{2, 142}, {2, 252}},
	{{2, 253}, {3, 92}},
	{{3, 93}, {4, 23}},
	{{4, 24}, {4, 147}},
	{{4, 148}, {5, 81}},
	{{5, 82}, {6, 110}},
	{{6, 111}, {7, 87}},
	{{7, 88}, {8, 40}},
	{{8, 41}, {9, 92}},
	{{9, 93}, {11, 5}},
	{{11, 6}, {12, 52}},
	{{12, 53}, {14, 52}},
	{{15, 1}, {16, 128}},
	{{17, 1}, {18, 74}},
	{{18, 75}, {20, 135}},
	{{21, 1}, {22, 78}},
	{{23, 1}, {25, 20}},
	{{25, 21}, {27, 55}},
	{{27, 56}, {29, 45}},
	{{29, 46}, {33, 30}},
	{{33, 31}, {36, 27}},
	{{36, 28}, {39, 31}},
	{{39, 32}, {41, 46}},
	{{41, 47}, {45, 37}},
	{{46, 1}, {51, 30}},
	{{51, 31}, {57, 29}},
	{{58, 1}, {66, 12}},
	{{67, 1}, {77, 50}},
	{{78, 1}, {114, 6}},
}
