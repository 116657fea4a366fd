package ir

// IRVersion is bumped whenever the JSON shape of Kernel or Schedule
// changes. It is stored with every run so old logs stay interpretable.
const IRVersion = "1"

// SchedulerVersion identifies the search and barrier logic that produced a
// run.
const SchedulerVersion = "0.1.0"
